package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmuse/flowmuse/pkg/catalog"
	"github.com/flowmuse/flowmuse/pkg/settings"
)

// NewCatalog builds the custom-node catalog service on the configured
// cache and starts its refresh schedule.
func NewCatalog(ctx context.Context, s *settings.Settings, logger *slog.Logger) *catalog.Service {
	store, err := catalog.NewStore(ctx, s.CacheURL)
	if err != nil {
		panic(fmt.Errorf("failed to create catalog store: %w", err))
	}

	service := catalog.NewService(store, s.RegistryURL, s.MirrorURL, logger)

	if err := service.ScheduleRefresh(s.RefreshSchedule); err != nil {
		panic(err)
	}

	return service
}
