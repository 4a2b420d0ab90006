package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akzios/bpsr-tools-sub001/internal/combat"
	"github.com/akzios/bpsr-tools-sub001/internal/core"
)

func newTestServer(t *testing.T) (*Server, *combat.Aggregator, *httptest.Server) {
	t.Helper()
	agg := combat.NewAggregator(combat.Config{})
	agg.Start()
	t.Cleanup(agg.Stop)

	srv := NewServer("", agg)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/api/snapshot", srv.handleSnapshot)
	mux.HandleFunc("/api/pause", srv.handlePause)
	mux.HandleFunc("/api/clear", srv.handleClear)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, agg, ts
}

func ingestDamage(t *testing.T, agg *combat.Aggregator, attacker uint64, amount int64) {
	t.Helper()
	agg.Ingest(core.Event{
		Kind:        core.KindDamage,
		AttackerUID: attacker,
		TargetUID:   999,
		SkillID:     1,
		Amount:      amount,
	})
	require.Eventually(t, func() bool {
		snap := agg.Query()
		pl, ok := snap.Players[attacker]
		return ok && pl.TotalDamage >= amount
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotEndpoint(t *testing.T) {
	_, agg, ts := newTestServer(t)
	ingestDamage(t, agg, 11, 500)

	resp, err := http.Get(ts.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap combat.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Contains(t, snap.Players, uint64(11))
	assert.Equal(t, int64(500), snap.Players[11].TotalDamage)
}

func TestSnapshotEndpointRejectsPost(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/snapshot", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPauseEndpoint(t *testing.T) {
	_, agg, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/pause", "application/json",
		strings.NewReader(`{"paused": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap combat.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Paused)

	// Events while paused are discarded.
	agg.Ingest(core.Event{Kind: core.KindDamage, AttackerUID: 5, TargetUID: 9, Amount: 100})
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, agg.Query().Players, uint64(5))
}

func TestPauseEndpointBadBody(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/pause", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClearEndpoint(t *testing.T) {
	_, agg, ts := newTestServer(t)
	ingestDamage(t, agg, 21, 750)

	resp, err := http.Post(ts.URL+"/api/clear", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap combat.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	if pl, ok := snap.Players[21]; ok {
		assert.Zero(t, pl.TotalDamage)
	}
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	_, agg, ts := newTestServer(t)
	ingestDamage(t, agg, 31, 1234)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The aggregator ticks every 100ms; the first pushed snapshot must
	// already carry the ingested damage.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var snap combat.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Contains(t, snap.Players, uint64(31))
	assert.Equal(t, int64(1234), snap.Players[31].TotalDamage)
}
