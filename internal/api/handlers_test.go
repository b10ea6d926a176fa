package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestServer(t *testing.T, cfg OwnerConfig) (*Server, *Owner) {
	t.Helper()
	o, roster, _, metrics := newTestOwner(t, cfg)
	c := roster.catalog
	srv := &Server{
		Catalog: c,
		Owner:   o,
		Roster:  roster,
		Gateway: NewGateway(roster, c, metrics, nil),
		Logger:  slog.Default(),
	}
	return srv, o
}

// runOwner steps the loop in the background until the test ends.
func runOwner(t *testing.T, o *Owner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func serve(t *testing.T, srv *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	srv.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHandleMutationOverHTTP(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{TickInterval: time.Millisecond, CommandCapacity: 16})
	equip(t, srv.Roster, "alice")
	runOwner(t, o)

	rec, out := serve(t, srv, http.MethodPost, "/api/mutations?player=alice",
		`{"type":"pause_resume","payload":{"request_id":"m-1","upgrade_id":"shields","pause":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "m-1", out["request_id"])
	assert.Equal(t, "applied", out["status"])
	assert.Equal(t, "NORMAL", out["tier"])

	rec, snap := serve(t, srv, http.MethodGet, "/api/artifact?player=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NORMAL", snap["tier"])
	upgrades, ok := snap["upgrades"].([]any)
	require.True(t, ok)
	var shieldPaused bool
	for _, u := range upgrades {
		entry := u.(map[string]any)
		if entry["id"] == "SHIELD" {
			shieldPaused = entry["paused"].(bool)
		}
	}
	assert.True(t, shieldPaused)
}

func TestHandleMutationRejectsBadInput(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{TickInterval: time.Millisecond, CommandCapacity: 16})
	runOwner(t, o)

	rec, _ := serve(t, srv, http.MethodPost, "/api/mutations?player=", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := serve(t, srv, http.MethodPost, "/api/mutations?player=alice", `{"type":"set_level","payload":{"upgrade_id":"SHIELD","new_level":5000}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonMalformed, out["reason"])

	rec, _ = serve(t, srv, http.MethodPost, "/api/mutations?player=alice", strings.Repeat("x", MaxFrameBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec, _ = serve(t, srv, http.MethodGet, "/api/mutations?player=alice", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleMutationUnknownPlayer(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{TickInterval: time.Millisecond, CommandCapacity: 16})
	runOwner(t, o)

	rec, out := serve(t, srv, http.MethodPost, "/api/mutations?player=stranger",
		`{"type":"pause_resume","payload":{"upgrade_id":"SHIELD","pause":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReasonUnauthorized, out["reason"])
	assert.NotContains(t, out, "tier", "no artifact, no energy reading")

	rec, _ = serve(t, srv, http.MethodGet, "/api/artifact?player=stranger", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMutationTimeoutIsNeverApplied(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 16})
	a := equip(t, srv.Roster, "alice")
	mux := http.NewServeMux()
	srv.Routes(mux)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/mutations?player=alice",
		strings.NewReader(`{"type":"pause_resume","payload":{"request_id":"t-1","upgrade_id":"SHIELD","pause":true}}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req) // the loop is not stepping

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "t-1", out["request_id"])
	assert.Equal(t, ReasonTimeout, out["reason"])
	assert.NotContains(t, out, "stored")

	o.Step(context.Background())
	entry, _ := a.Entry("SHIELD")
	assert.False(t, entry.Paused, "a request reported as not run must stay not run")
	assert.False(t, a.Dirty())
}

func TestHandleMutationQueueLimit(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 16, PerActorLimit: 1})
	o.Submit("alice", func() {})

	rec, out := serve(t, srv, http.MethodPost, "/api/mutations?player=alice",
		`{"type":"pause_resume","payload":{"request_id":"q-1","upgrade_id":"SHIELD","pause":true}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ReasonQueueLimit, out["reason"])
	assert.Equal(t, "q-1", out["request_id"])
}

func TestConnectEquipsOnTheLoop(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{TickInterval: time.Millisecond, CommandCapacity: 16})
	runOwner(t, o)

	require.NoError(t, srv.Connect(context.Background(), "alice"))
	rec, snap := serve(t, srv, http.MethodGet, "/api/artifact?player=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, snap["id"])

	assert.ErrorIs(t, srv.Connect(context.Background(), "bad player"), ErrInvalidPlayer)
}

func TestHandleGetUpgrades(t *testing.T) {
	srv, _ := newTestServer(t, OwnerConfig{CommandCapacity: 4})

	rec := httptest.NewRecorder()
	srv.HandleGetUpgrades(rec, httptest.NewRequest(http.MethodGet, "/api/upgrades", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var defs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	require.Len(t, defs, 4)
	assert.Equal(t, "BATTERY", defs[0]["key"])
}

func TestHandleGetArtifactBusy(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 1})
	o.Submit("someone", func() {})

	rec, _ := serve(t, srv, http.MethodGet, "/api/artifact?player=alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func registerTestClient(t *testing.T, srv *Server, player string) chan []byte {
	t.Helper()
	hub := NewHub(srv, nil)
	srv.Hub = hub
	go hub.Run()
	t.Cleanup(hub.Stop)

	client := &Client{hub: hub, player: player, send: make(chan []byte, sendBufferSize)}
	hub.register <- client
	return client.send
}

func nextMessage(t *testing.T, ch chan []byte) (string, map[string]any) {
	t.Helper()
	select {
	case data := <-ch:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		var payload map[string]any
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		return env.Type, payload
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return "", nil
	}
}

func TestDispatchRepliesThroughHub(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 4})
	equip(t, srv.Roster, "alice")
	inbox := registerTestClient(t, srv, "alice")

	srv.Dispatch("alice", []byte(`{"type":"pause_resume","payload":{"request_id":"d-1","upgrade_id":"SHIELD","pause":true}}`))
	o.Step(context.Background())

	msgType, payload := nextMessage(t, inbox)
	assert.Equal(t, TypeMutationOutcome, msgType)
	assert.Equal(t, "d-1", payload["request_id"])
	assert.Equal(t, "applied", payload["status"])

	msgType, payload = nextMessage(t, inbox)
	assert.Equal(t, TypeArtifactResync, msgType)
	assert.NotEmpty(t, payload["upgrades"])
}

func TestDispatchMalformedFrame(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 4})
	inbox := registerTestClient(t, srv, "alice")

	srv.Dispatch("alice", []byte(`{"type":"set_level"`))

	msgType, payload := nextMessage(t, inbox)
	assert.Equal(t, TypeMutationOutcome, msgType)
	assert.Equal(t, ReasonMalformed, payload["reason"])
	assert.Equal(t, 0, o.Pending(), "malformed frames never reach the loop")
}

func TestDispatchWhenQueueIsFull(t *testing.T) {
	srv, o := newTestServer(t, OwnerConfig{CommandCapacity: 1})
	inbox := registerTestClient(t, srv, "alice")
	o.Submit("bob", func() {})

	srv.Dispatch("alice", []byte(`{"type":"set_level","payload":{"request_id":"d-2","upgrade_id":"SHIELD","new_level":1}}`))

	msgType, payload := nextMessage(t, inbox)
	assert.Equal(t, TypeMutationOutcome, msgType)
	assert.Equal(t, "d-2", payload["request_id"])
	assert.Equal(t, "rejected", payload["status"])
	assert.Equal(t, ReasonQueueFull, payload["reason"])
	assert.NotContains(t, payload, "tier")
}

func TestHubTracksPresence(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	first := &Client{hub: hub, player: "alice", send: make(chan []byte, 1)}
	second := &Client{hub: hub, player: "alice", send: make(chan []byte, 1)}
	hub.register <- first
	hub.register <- second
	hub.unregister <- first
	hub.register <- &Client{hub: hub, player: "bob", send: make(chan []byte, 1)}
	// Run handles one event at a time, so alice's state is settled here.
	assert.True(t, hub.Online("alice"), "one socket is still open")

	hub.unregister <- second
	hub.register <- &Client{hub: hub, player: "carol", send: make(chan []byte, 1)}
	assert.False(t, hub.Online("alice"))
	assert.True(t, hub.Online("bob"))
}

func TestClientFrameBudget(t *testing.T) {
	c := &Client{limiter: rate.NewLimiter(0, 2)}
	assert.True(t, c.allow())
	assert.True(t, c.allow())
	assert.False(t, c.allow(), "burst spent and no refill")

	assert.True(t, (&Client{}).allow(), "no limiter means no budget")
}
