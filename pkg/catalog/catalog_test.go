package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmuse/flowmuse/pkg/models"
)

func metadataServer(t *testing.T, hits *atomic.Int64, description string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "node-red-contrib-sensor",
			"version": "2.0.1",
			"description": "` + description + `",
			"keywords": ["node-red", "sensor"]
		}`))
	}))
	t.Cleanup(server.Close)

	return server
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestResolveFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	registry := metadataServer(t, &hits, "A **sensor** node for [Node-RED](https://example.com)")

	svc := NewService(NewMemoryStore(), registry.URL, registry.URL, slog.Default())
	ctx := context.Background()

	spec, err := svc.Resolve(ctx, "node-red-contrib-sensor")
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", spec.Version)
	assert.Equal(t, "A sensor node for Node-RED", spec.Description, "description arrives markdown-stripped")
	assert.Equal(t, []string{"node-red", "sensor"}, spec.Keywords)

	again, err := svc.Resolve(ctx, "node-red-contrib-sensor")
	require.NoError(t, err)
	assert.Equal(t, spec.Description, again.Description)
	assert.Equal(t, int64(1), hits.Load(), "second resolve is served from the cache")
}

func TestResolveFallsBackToMirror(t *testing.T) {
	t.Parallel()

	registry := failingServer(t)

	var mirrorHits atomic.Int64
	mirror := metadataServer(t, &mirrorHits, "served by the mirror")

	svc := NewService(NewMemoryStore(), registry.URL, mirror.URL, slog.Default())

	spec, err := svc.Resolve(context.Background(), "node-red-contrib-sensor")
	require.NoError(t, err)
	assert.Equal(t, "served by the mirror", spec.Description)
	assert.Equal(t, int64(1), mirrorHits.Load())
}

func TestResolveFailsWhenBothSourcesFail(t *testing.T) {
	t.Parallel()

	registry := failingServer(t)
	mirror := failingServer(t)

	svc := NewService(NewMemoryStore(), registry.URL, mirror.URL, slog.Default())

	_, err := svc.Resolve(context.Background(), "node-red-contrib-sensor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving package 'node-red-contrib-sensor'")
}

func TestResolveEscapesScopedPackageNames(t *testing.T) {
	t.Parallel()

	var rawPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "@scope/pkg", "version": "1.0.0", "description": "scoped"}`))
	}))
	t.Cleanup(server.Close)

	svc := NewService(NewMemoryStore(), server.URL, server.URL, slog.Default())

	_, err := svc.Resolve(context.Background(), "@scope/pkg")
	require.NoError(t, err)
	assert.Equal(t, "/@scope%2Fpkg/latest", rawPath)
}

func TestRegisterMergesEditorPayloadWithRegistry(t *testing.T) {
	t.Parallel()

	registry := metadataServer(t, nil, "reads sensors")

	store := NewMemoryStore()
	svc := NewService(store, registry.URL, registry.URL, slog.Default())
	ctx := context.Background()

	registered, err := svc.Register(ctx, []*models.CustomNodeSpec{
		{
			PackageName: "node-red-contrib-sensor",
			Types:       []string{"sensor in", "sensor out"},
			Fields:      []string{"pin", "interval"},
		},
		{PackageName: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, registered, "blank package names are skipped")

	spec, err := store.Get(ctx, "node-red-contrib-sensor")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "reads sensors", spec.Description)
	assert.Equal(t, "2.0.1", spec.Version)
	assert.Equal(t, []string{"pin", "interval"}, spec.Fields, "editor field list wins")
	assert.NotEmpty(t, spec.UpdatedAt)
}

func TestRegisterToleratesUnresolvablePackages(t *testing.T) {
	t.Parallel()

	registry := failingServer(t)

	store := NewMemoryStore()
	svc := NewService(store, registry.URL, registry.URL, slog.Default())
	ctx := context.Background()

	registered, err := svc.Register(ctx, []*models.CustomNodeSpec{
		{
			PackageName: "node-red-contrib-mystery",
			Description: "## editor supplied",
			Types:       []string{"mystery"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, registered)

	spec, err := store.Get(ctx, "node-red-contrib-mystery")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "editor supplied", spec.Description, "editor description is kept, markdown-stripped")
}

func TestSummaries(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.CustomNodeSpec{
		PackageName: "b-pkg",
		Description: "second",
		Types:       []string{"b-node"},
		Fields:      []string{"topic"},
	}))
	require.NoError(t, store.Put(ctx, &models.CustomNodeSpec{
		PackageName: "a-pkg",
		Description: "first",
		Types:       []string{"a-node"},
	}))

	svc := NewService(store, "", "", slog.Default())

	summaries, err := svc.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "a-node", summaries[0].Name, "summaries are ordered by package name")
	assert.Equal(t, "b-node", summaries[1].Name)
	assert.Equal(t, []string{"topic"}, summaries[1].Fields)
}

func TestRefreshAllUpdatesDescriptions(t *testing.T) {
	t.Parallel()

	registry := metadataServer(t, nil, "fresh description")

	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.CustomNodeSpec{
		PackageName: "node-red-contrib-sensor",
		Description: "stale description",
		Types:       []string{"sensor in"},
	}))

	svc := NewService(store, registry.URL, registry.URL, slog.Default())
	svc.RefreshAll(ctx)

	spec, err := store.Get(ctx, "node-red-contrib-sensor")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "fresh description", spec.Description)
	assert.Equal(t, "2.0.1", spec.Version)
	assert.Equal(t, []string{"sensor in"}, spec.Types, "editor-declared types survive the refresh")
}

func TestScheduleRefreshRejectsBadExpressions(t *testing.T) {
	t.Parallel()

	svc := NewService(NewMemoryStore(), "", "", slog.Default())

	err := svc.ScheduleRefresh("not a cron line")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid catalog refresh schedule")
}
