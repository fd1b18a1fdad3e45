package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmuse/flowmuse/pkg/catalog"
	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/graph"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/services"
	"github.com/flowmuse/flowmuse/pkg/tracker"
	"github.com/flowmuse/flowmuse/pkg/web"
)

// TestAPI_EndToEnd drives the whole HTTP surface wired the way the server
// boots it: a redis-backed catalog, a snapshot file on disk and the full
// route set. Custom nodes registered over HTTP must reach the next
// generation's prompt context, and graph changes must survive a reload.
func TestAPI_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mr := miniredis.RunT(t)

	catalogStore, err := catalog.NewStore(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)

	registryServer := fakePackageRegistry(t)
	catalogService := catalog.NewService(catalogStore, registryServer.URL, registryServer.URL, slog.Default())

	conn := newStubConnector()
	conn.flowResult = models.GenerationResult{
		Success:  true,
		Kind:     models.KindFlow,
		FlowName: "Sensor Logger",
		Flow: []*models.Node{
			{ID: "n1", Type: "sensor in", Wires: [][]string{{"n2"}}, Extra: map[string]any{"device": "plc-1"}},
			{ID: "n2", Type: "debug"},
		},
	}

	registry := connector.NewRegistry()
	registry.Register(conn)

	store := graph.NewStore()
	syncTracker := tracker.NewTracker(slog.Default())

	snapshotPath := filepath.Join(t.TempDir(), "flows.json")
	snapshot := graph.NewSnapshotFile(snapshotPath)

	assist := services.NewAssist(
		registry,
		conn.Name(),
		store,
		syncTracker,
		catalogService,
		snapshot,
		nil,
		nil,
		slog.Default(),
	)

	handlers := web.NewAPIHandlers(
		assist,
		registry,
		store,
		syncTracker,
		catalogService,
		validator.New(validator.WithRequiredStructEnabled()),
		slog.Default(),
	)

	app := fiber.New()

	ai := app.Group("/ai")
	ai.Post("/build-flow", handlers.BuildFlow)
	ai.Post("/resync-node", handlers.ResyncNode)
	ai.Post("/generate-description", handlers.GenerateDescription)
	ai.Post("/custom-nodes", handlers.RegisterCustomNodes)
	ai.Get("/providers", handlers.GetProviders)
	ai.Get("/sync-state", handlers.ListSyncStates)
	ai.Get("/sync-state/:nodeId", handlers.GetSyncState)

	app.Get("/flows", handlers.GetFlows)
	app.Get("/flows/:id", handlers.GetFlow)
	app.Get("/health", handlers.HealthCheck)

	// The empty deployment is healthy as long as the provider validates.
	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.status)

	// Register the editor's custom node table. The description resolves
	// through the package registry and lands in redis.
	resp = doJSON(t, app, http.MethodPost, "/ai/custom-nodes", map[string]any{
		"nodes": []map[string]any{
			{"packageName": "node-red-contrib-sensor", "types": []string{"sensor in"}, "fields": []string{"device"}},
		},
	})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), `"registered":1`)

	cached, err := catalogStore.Get(ctx, "node-red-contrib-sensor")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Stub package description", cached.Description)

	// Generate a flow. With no editor context the prompt context falls
	// back to the catalog, so the registered package must be visible.
	resp = doJSON(t, app, http.MethodPost, "/ai/build-flow", web.BuildFlowRequest{
		Prompt: "Create a flow that logs the sensor readings",
	})
	require.Equal(t, http.StatusOK, resp.status)

	var generated models.GenerationResult
	require.NoError(t, json.Unmarshal(resp.body, &generated))
	require.True(t, generated.Success)
	require.Len(t, generated.Flow, 2)

	pctx := conn.promptContext()
	require.Len(t, pctx.CustomNodes, 1)
	assert.Equal(t, "sensor in", pctx.CustomNodes[0].Name)
	assert.Equal(t, "Stub package description", pctx.CustomNodes[0].Description)

	// The new tab is readable through the graph surface.
	resp = doJSON(t, app, http.MethodGet, "/flows", nil)
	require.Equal(t, http.StatusOK, resp.status)

	var flows struct {
		Flows []*models.Tab `json:"flows"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.body, &flows))
	require.Equal(t, 1, flows.Count)
	assert.Equal(t, "Sensor Logger", flows.Flows[0].Label)

	resp = doJSON(t, app, http.MethodGet, "/flows/"+flows.Flows[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.status)

	// Resync one generated node and confirm the tracker records it.
	resp = doJSON(t, app, http.MethodPost, "/ai/resync-node", web.ResyncNodeRequest{
		NodeID:   "n1",
		NodeType: "sensor in",
		Info:     "poll the device every 5 seconds",
	})
	require.Equal(t, http.StatusOK, resp.status)

	var resynced models.GenerationResult
	require.NoError(t, json.Unmarshal(resp.body, &resynced))
	require.True(t, resynced.Success)
	require.NotNil(t, resynced.UpdatedNode)
	assert.Equal(t, "n1", resynced.UpdatedNode.ID)

	resp = doJSON(t, app, http.MethodGet, "/ai/sync-state/n1", nil)
	require.Equal(t, http.StatusOK, resp.status)

	var state web.SyncStateResponse
	require.NoError(t, json.Unmarshal(resp.body, &state))
	assert.Equal(t, models.SyncIdle, state.Status)
	assert.Equal(t, "poll the device every 5 seconds", state.LastSyncedInfo)
	assert.Equal(t, "none", state.Drift)

	// The snapshot on disk carries everything needed to rebuild the
	// document, including the resynced node.
	flat, err := snapshot.Load(ctx)
	require.NoError(t, err)

	reloaded := graph.NewStore()
	require.NoError(t, reloaded.Restore(flat))

	tabs, nodes := reloaded.Stats()
	assert.Equal(t, 1, tabs)
	assert.Equal(t, 2, nodes)

	restored, ok := reloaded.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "Uppercaser", restored.Name)
}

type jsonResponse struct {
	status int
	body   []byte
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) jsonResponse {
	t.Helper()

	var reader io.Reader

	if payload != nil {
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		reader = bytes.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return jsonResponse{status: resp.StatusCode, body: body}
}
