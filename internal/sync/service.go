package sync

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncta/internal/matching"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/repositories"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/desertthunder/syncta/internal/tasks"
)

// Service is the high-level entry point for sync operations: preview,
// apply, import, and export. It owns the detector, planner, gate, and
// executor, plus the registered adapters.
type Service struct {
	store    *repositories.Store
	limiter  *tasks.Limiter
	gate     *Gate
	detector *Detector
	planner  *Planner
	executor *Executor
	logger   *log.Logger

	adapters map[models.Platform]platforms.Adapter
}

// NewService assembles the sync pipeline from configuration.
func NewService(store *repositories.Store, cfg *shared.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limiter := tasks.NewLimiter(cfg.Sync)
	gate := NewGate(cfg.Safety)
	thresholds := matching.Thresholds{
		Auto:      cfg.Sync.MatchAutoThreshold,
		Candidate: cfg.Sync.MatchCandidateThreshold,
	}

	return &Service{
		store:    store,
		limiter:  limiter,
		gate:     gate,
		detector: NewDetector(store, limiter, thresholds, logger),
		planner:  NewPlanner(),
		executor: NewExecutor(store, limiter, gate, logger),
		logger:   logger,
		adapters: make(map[models.Platform]platforms.Adapter),
	}
}

// RegisterAdapter makes an adapter available for sync and registers its
// rate budget with the limiter.
func (s *Service) RegisterAdapter(adapter platforms.Adapter) {
	s.adapters[models.Platform(adapter.Name())] = adapter
	s.limiter.Register(adapter.Name(), adapter.Capabilities().RateBudgetPerMinute)
}

// Adapter returns the registered adapter for a platform.
func (s *Service) Adapter(platform models.Platform) (platforms.Adapter, error) {
	adapter, ok := s.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for platform %q", shared.ErrNotFound, platform)
	}
	return adapter, nil
}

// Gate exposes the safety gate for emergency stop control.
func (s *Service) Gate() *Gate { return s.gate }

// Preview computes the plan for one binding without applying anything.
// The plan comes back gate-filtered: changes the safety gate would
// refuse arrive deselected with the reason in their description.
func (s *Service) Preview(ctx context.Context, bindingID int64) (*Plan, error) {
	binding, err := s.store.Bindings.Get(bindingID)
	if err != nil {
		return nil, err
	}
	playlist, err := s.store.Playlists.Get(binding.PlaylistID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.Adapter(binding.Platform)
	if err != nil {
		return nil, err
	}

	diff, err := s.detector.Detect(ctx, adapter, binding)
	if err != nil {
		return nil, err
	}

	remoteName := s.remoteName(ctx, adapter, binding)
	caps := adapter.Capabilities()
	plan := s.planner.Plan(diff, playlist.Name, remoteName, caps)
	s.gate.FilterPlan(plan, caps)
	return plan, nil
}

// Apply executes a previewed plan, honoring the user's selections.
func (s *Service) Apply(ctx context.Context, plan *Plan, progress chan<- ProgressEvent) (*Summary, error) {
	adapter, err := s.Adapter(plan.Binding.Platform)
	if err != nil {
		return nil, err
	}
	return s.executor.Apply(ctx, adapter, plan, progress)
}

// Sync previews and applies one binding in a single call, keeping the
// plan's default selections.
func (s *Service) Sync(ctx context.Context, bindingID int64, progress chan<- ProgressEvent) (*Summary, error) {
	plan, err := s.Preview(ctx, bindingID)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, plan, progress)
}

// Import creates a local playlist from a remote one and binds it
// import-only, then runs the first sync to pull its members in.
func (s *Service) Import(ctx context.Context, platform models.Platform, externalPlaylistID string, progress chan<- ProgressEvent) (*Summary, error) {
	adapter, err := s.Adapter(platform)
	if err != nil {
		return nil, err
	}

	var remote *platforms.Playlist
	err = s.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
		lists, listErr := adapter.ListPlaylists(ctx)
		if listErr != nil {
			return listErr
		}
		for i := range lists {
			if lists[i].ID == externalPlaylistID {
				remote = &lists[i]
				return nil
			}
		}
		return fmt.Errorf("%w: playlist %q on %s", shared.ErrNotFound, externalPlaylistID, platform)
	})
	if err != nil {
		return nil, err
	}

	playlist := &models.Playlist{Name: remote.Name, Kind: models.KindPlaylist}
	if err := s.store.Playlists.Create(playlist); err != nil {
		return nil, fmt.Errorf("create local playlist: %w", err)
	}

	binding := &models.Binding{
		PlaylistID:         playlist.ID,
		Platform:           platform,
		ExternalPlaylistID: externalPlaylistID,
		Mode:               models.SyncImportOnly,
		IsPersonal:         remote.IsOwned,
	}
	if err := s.store.Bindings.Create(binding); err != nil {
		return nil, fmt.Errorf("bind imported playlist: %w", err)
	}

	return s.Sync(ctx, binding.ID, progress)
}

// Export binds a local playlist to a platform with no remote
// counterpart yet and runs the first sync, which creates the remote
// playlist and pushes the members.
func (s *Service) Export(ctx context.Context, playlistID int64, platform models.Platform, mode models.SyncMode, progress chan<- ProgressEvent) (*Summary, error) {
	if _, err := s.Adapter(platform); err != nil {
		return nil, err
	}

	binding := &models.Binding{
		PlaylistID: playlistID,
		Platform:   platform,
		Mode:       mode,
		IsPersonal: true,
	}
	if err := s.store.Bindings.Create(binding); err != nil {
		return nil, fmt.Errorf("bind playlist for export: %w", err)
	}

	return s.Sync(ctx, binding.ID, progress)
}

// remoteName resolves the remote playlist's display name for previews
// and the test-prefix policy. Failure degrades to an empty name.
func (s *Service) remoteName(ctx context.Context, adapter platforms.Adapter, binding *models.Binding) string {
	if binding.Pending() {
		return ""
	}

	var name string
	err := s.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
		lists, listErr := adapter.ListPlaylists(ctx)
		if listErr != nil {
			return listErr
		}
		for _, list := range lists {
			if list.ID == binding.ExternalPlaylistID {
				name = list.Name
				return nil
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("remote name lookup failed", "binding", binding.ID, "err", err)
	}
	return name
}
