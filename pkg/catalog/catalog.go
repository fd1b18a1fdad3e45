// Package catalog resolves human-readable descriptions for installed
// custom node packages and caches a summarized table that the prompt
// composer embeds as generation context.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmuse/flowmuse/pkg/models"
)

const (
	DefaultRegistryURL = "https://registry.npmjs.org"
	DefaultMirrorURL   = "https://registry.npmmirror.com"

	// DefaultRefreshSchedule re-resolves cached packages nightly so
	// descriptions don't go stale in long-lived editors.
	DefaultRefreshSchedule = "0 3 * * *"

	fetchTimeout = 3 * time.Second
)

// packageMetadata is the subset of the registry's `{pkg}/latest`
// document the catalog reads.
type packageMetadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Service looks packages up in a registry with a fallback mirror, each
// request bounded by a short timeout, and keeps the results in a Store.
type Service struct {
	store    Store
	client   *http.Client
	registry string
	mirror   string
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewService(store Store, registryURL, mirrorURL string, logger *slog.Logger) *Service {
	if registryURL == "" {
		registryURL = DefaultRegistryURL
	}

	if mirrorURL == "" {
		mirrorURL = DefaultMirrorURL
	}

	return &Service{
		store:    store,
		client:   &http.Client{Timeout: fetchTimeout},
		registry: strings.TrimSuffix(registryURL, "/"),
		mirror:   strings.TrimSuffix(mirrorURL, "/"),
		logger:   logger.With("module", "catalog"),
	}
}

// Resolve returns the catalog record for a package, fetching and caching
// it on first sight.
func (s *Service) Resolve(ctx context.Context, packageName string) (*models.CustomNodeSpec, error) {
	cached, err := s.store.Get(ctx, packageName)
	if err != nil {
		return nil, err
	}

	if cached != nil {
		return cached, nil
	}

	spec, err := s.fetch(ctx, packageName)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, spec); err != nil {
		return nil, err
	}

	return spec, nil
}

// Register stores the custom node table the editor reports: one record
// per package, the editor's type and field lists merged with a resolved
// description. Lookup failures are not fatal; the table entry is stored
// with whatever description the editor supplied.
func (s *Service) Register(ctx context.Context, specs []*models.CustomNodeSpec) (int, error) {
	registered := 0

	for _, incoming := range specs {
		name := strings.TrimSpace(incoming.PackageName)
		if name == "" {
			continue
		}

		spec := copySpec(incoming)
		spec.PackageName = name

		if cached, err := s.store.Get(ctx, name); err == nil && cached != nil && cached.Description != "" {
			spec.Description = cached.Description
			if spec.Version == "" {
				spec.Version = cached.Version
			}
			if len(spec.Keywords) == 0 {
				spec.Keywords = cached.Keywords
			}
		} else if resolved, err := s.fetch(ctx, name); err == nil {
			spec.Description = resolved.Description
			if spec.Version == "" {
				spec.Version = resolved.Version
			}
			if len(spec.Keywords) == 0 {
				spec.Keywords = resolved.Keywords
			}
		} else {
			s.logger.Warn("Package description unresolved", "package", name, "error", err)
			spec.Description = Summarize(spec.Description, DefaultSummaryLimit)
		}

		spec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

		if err := s.store.Put(ctx, spec); err != nil {
			return registered, err
		}

		registered++
	}

	return registered, nil
}

// Summaries returns the prompt-context table for every cached package,
// ordered by package name.
func (s *Service) Summaries(ctx context.Context) ([]models.CustomNodeSummary, error) {
	names, err := s.store.Packages(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.CustomNodeSummary, 0, len(names))

	for _, name := range names {
		spec, err := s.store.Get(ctx, name)
		if err != nil {
			return nil, err
		}

		if spec == nil {
			continue
		}

		summaries = append(summaries, spec.Summary())
	}

	return summaries, nil
}

// HealthCheck reports whether the catalog store answers.
func (s *Service) HealthCheck(ctx context.Context) (string, bool) {
	names, err := s.store.Packages(ctx)
	if err != nil {
		return "catalog store unreachable: " + err.Error(), false
	}

	return fmt.Sprintf("catalog holds %d packages", len(names)), true
}

// RefreshAll re-resolves every cached package. Individual failures are
// logged and skipped; the remaining records still refresh.
func (s *Service) RefreshAll(ctx context.Context) {
	names, err := s.store.Packages(ctx)
	if err != nil {
		s.logger.Error("Failed to list catalog for refresh", "error", err)

		return
	}

	refreshed := 0

	for _, name := range names {
		spec, err := s.store.Get(ctx, name)
		if err != nil || spec == nil {
			continue
		}

		resolved, err := s.fetch(ctx, name)
		if err != nil {
			s.logger.Warn("Package refresh failed", "package", name, "error", err)

			continue
		}

		spec.Description = resolved.Description
		spec.Version = resolved.Version
		if len(resolved.Keywords) > 0 {
			spec.Keywords = resolved.Keywords
		}
		spec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

		if err := s.store.Put(ctx, spec); err != nil {
			s.logger.Error("Failed to store refreshed record", "package", name, "error", err)

			continue
		}

		refreshed++
	}

	s.logger.Info("Catalog refreshed", "packages", refreshed)
}

// ScheduleRefresh starts the nightly re-resolution job.
func (s *Service) ScheduleRefresh(cronExpr string) error {
	if cronExpr == "" {
		cronExpr = DefaultRefreshSchedule
	}

	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid catalog refresh schedule '%s': %w", cronExpr, err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(cronExpr, func() { s.RefreshAll(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduled catalog refresh", "cron", cronExpr)

	return nil
}

// Stop halts the refresh job and releases the store.
func (s *Service) Stop() error {
	if s.cron != nil {
		s.cron.Stop()
	}

	return s.store.Close()
}

// fetch resolves a package through the registry and, on any failure, the
// mirror. Each attempt is bounded by its own timeout.
func (s *Service) fetch(ctx context.Context, packageName string) (*models.CustomNodeSpec, error) {
	meta, err := s.fetchFrom(ctx, s.registry, packageName)
	if err != nil {
		s.logger.Warn("Registry lookup failed, trying mirror", "package", packageName, "error", err)

		meta, err = s.fetchFrom(ctx, s.mirror, packageName)
	}

	if err != nil {
		return nil, fmt.Errorf("resolving package '%s': %w", packageName, err)
	}

	return &models.CustomNodeSpec{
		PackageName: packageName,
		Version:     meta.Version,
		Description: Summarize(meta.Description, DefaultSummaryLimit),
		Keywords:    meta.Keywords,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) fetchFrom(ctx context.Context, base, packageName string) (*packageMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	// Scoped package names carry a slash that must travel escaped.
	endpoint := fmt.Sprintf("%s/%s/latest", base, url.PathEscape(packageName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var meta packageMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("invalid registry response: %w", err)
	}

	return &meta, nil
}
