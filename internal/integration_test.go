package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"equipment-tracker-backend/config"
	"equipment-tracker-backend/internal/api"
	"equipment-tracker-backend/internal/db"
	"equipment-tracker-backend/internal/engine"
	"equipment-tracker-backend/internal/hub"
	"equipment-tracker-backend/internal/store"
)

type snapshotBody struct {
	ID                  uuid.UUID `json:"equipmentId"`
	Name                string    `json:"name"`
	Location            string    `json:"location"`
	CurrentState        int       `json:"currentState"`
	CurrentStateDisplay string    `json:"currentStateDisplay"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type historyBody struct {
	EquipmentID          uuid.UUID `json:"equipmentId"`
	EquipmentName        string    `json:"equipmentName"`
	PreviousState        int       `json:"previousState"`
	PreviousStateDisplay string    `json:"previousStateDisplay"`
	NewState             int       `json:"newState"`
	NewStateDisplay      string    `json:"newStateDisplay"`
	ChangedBy            string    `json:"changedBy"`
	ChangedAt            time.Time `json:"changedAt"`
	Notes                string    `json:"notes"`
}

// TestEquipmentLifecycle walks the whole stack: seeded equipment, a state
// transition over HTTP, the audit trail, and the WebSocket broadcast.
func TestEquipmentLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))
	require.NoError(t, db.Seed(testDB))

	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  100,
			CacheTTLSeconds: 1,
		},
		Hub: config.HubConfig{
			SendBufferSize:      8,
			PingIntervalSeconds: 30,
			PongTimeoutSeconds:  60,
			MaxMessageSize:      4096,
		},
	}

	appStore := store.NewGormStore(testDB)
	updateHub := hub.New(cfg.Hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go updateHub.Run(ctx)

	svc := engine.New(appStore, updateHub, nil)
	router := api.NewRouter(&cfg.Server, svc, appStore, updateHub, &webpush.Options{})

	srv := httptest.NewServer(router)
	defer srv.Close()

	// Packaging Line B1 is seeded in the Stopped state.
	targetID := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	t.Run("list is ordered by location then name", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/equipment")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []snapshotBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list, 3)
		assert.Equal(t, "Molding Machine A1", list[0].Name)
		assert.Equal(t, "Molding Machine A2", list[1].Name)
		assert.Equal(t, "Packaging Line B1", list[2].Name)
		assert.Equal(t, "Producing Normally", list[0].CurrentStateDisplay)
	})

	// Subscribe an observer before the transition.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if wsResp != nil && wsResp.Body != nil {
		defer wsResp.Body.Close()
	}
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(hub.Message{Type: hub.MsgTypeSubscribe, Topic: hub.TopicEquipmentUpdates}))
	var ack hub.Message
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, hub.MsgTypeResponse, ack.Type)

	var updated snapshotBody
	t.Run("update state commits and returns the new snapshot", func(t *testing.T) {
		body := bytes.NewBufferString(`{"newState": 2, "changedBy": "Alice", "notes": "shift start"}`)
		req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/equipment/%s/state", srv.URL, targetID), body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
		assert.Equal(t, targetID, updated.ID)
		assert.Equal(t, 2, updated.CurrentState)
		assert.Equal(t, "Producing Normally", updated.CurrentStateDisplay)
	})

	t.Run("subscribed observer receives exactly one event", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg hub.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, hub.MsgTypeEvent, msg.Type)
		assert.Equal(t, hub.TopicEquipmentUpdates, msg.Topic)
		assert.Equal(t, hub.EventStateChanged, msg.Event)

		var event snapshotBody
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, targetID, event.ID)
		assert.Equal(t, 2, event.CurrentState)
		assert.Equal(t, "Packaging Line B1", event.Name)

		// And only one.
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		var extra hub.Message
		require.Error(t, conn.ReadJSON(&extra))
		conn.SetReadDeadline(time.Time{})
	})

	t.Run("history records the transition", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/api/history?equipmentId=%s", srv.URL, targetID))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var records []historyBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		require.Len(t, records, 1)
		assert.Equal(t, targetID, records[0].EquipmentID)
		assert.Equal(t, "Packaging Line B1", records[0].EquipmentName)
		assert.Equal(t, 0, records[0].PreviousState)
		assert.Equal(t, "Standing Still", records[0].PreviousStateDisplay)
		assert.Equal(t, 2, records[0].NewState)
		assert.Equal(t, "Alice", records[0].ChangedBy)
		assert.Equal(t, "shift start", records[0].Notes)
	})

	t.Run("get is idempotent", func(t *testing.T) {
		get := func() snapshotBody {
			resp, err := http.Get(fmt.Sprintf("%s/api/equipment/%s", srv.URL, targetID))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var snap snapshotBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
			return snap
		}
		assert.Equal(t, get(), get())
	})

	t.Run("error taxonomy over HTTP", func(t *testing.T) {
		// Unknown equipment.
		body := bytes.NewBufferString(`{"newState": 1, "changedBy": "Alice"}`)
		req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/equipment/%s/state", srv.URL, uuid.New()), body)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		// Missing changedBy.
		body = bytes.NewBufferString(`{"newState": 1}`)
		req, _ = http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/equipment/%s/state", srv.URL, targetID), body)
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// Out-of-range state.
		body = bytes.NewBufferString(`{"newState": 9, "changedBy": "Alice"}`)
		req, _ = http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/equipment/%s/state", srv.URL, targetID), body)
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// Malformed id.
		resp, err = http.Get(srv.URL + "/api/equipment/not-a-uuid")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unsubscribed observer receives nothing", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(hub.Message{Type: hub.MsgTypeUnsubscribe, Topic: hub.TopicEquipmentUpdates}))
		var unAck hub.Message
		require.NoError(t, conn.ReadJSON(&unAck))
		require.Equal(t, hub.MsgTypeResponse, unAck.Type)

		body := bytes.NewBufferString(`{"newState": 0, "changedBy": "Bob"}`)
		req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/equipment/%s/state", srv.URL, targetID), body)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		var msg hub.Message
		assert.Error(t, conn.ReadJSON(&msg))
	})
}
