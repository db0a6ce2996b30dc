package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/syncta/internal/formatter"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
	librarysync "github.com/desertthunder/syncta/internal/sync"
	"github.com/desertthunder/syncta/internal/tasks"
	"github.com/urfave/cli/v3"
)

// BindAdd links a local playlist to a platform playlist. With no
// --external-id the remote playlist is created on the first sync.
func (r *Runner) BindAdd(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	mode := models.SyncMode(cmd.String("mode"))
	if mode == "" {
		mode = models.SyncMode(r.config.Sync.DefaultMode)
	}

	binding := &models.Binding{
		PlaylistID:         int64(cmd.Int("playlist-id")),
		Platform:           models.Platform(cmd.String("platform")),
		ExternalPlaylistID: cmd.String("external-id"),
		Mode:               mode,
		IsPersonal:         !cmd.Bool("shared"),
	}
	if err := r.store.Bindings.Create(binding); err != nil {
		return err
	}

	r.writePlain("binding %d created (%s, %s)\n", binding.ID, binding.Platform, binding.Mode)
	if binding.Pending() {
		r.writePlain("the %s playlist will be created on the first sync\n", binding.Platform)
	}
	return nil
}

// BindList prints every binding with its playlist and sync state.
func (r *Runner) BindList(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	bindings, err := r.store.Bindings.List()
	if err != nil {
		return err
	}

	for _, binding := range bindings {
		name := fmt.Sprintf("playlist %d", binding.PlaylistID)
		if playlist, err := r.store.Playlists.Get(binding.PlaylistID); err == nil {
			name = playlist.Name
		}

		synced := "never synced"
		if !binding.LastSyncedAt.IsZero() {
			synced = "last synced " + binding.LastSyncedAt.Format("2006-01-02 15:04")
		}
		r.writePlain("%4d  %-30s %-10s %-22s %s\n", binding.ID, name, binding.Platform, binding.Mode, synced)
	}
	return nil
}

// BindRemove deletes a binding and its snapshot. Local playlists and
// links are untouched.
func (r *Runner) BindRemove(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	id := int64(cmd.IntArg("id"))
	if err := r.store.Bindings.Delete(id); err != nil {
		return err
	}
	r.writePlain("binding %d removed\n", id)
	return nil
}

// SyncPreview prints the plan for one binding without applying it.
func (r *Runner) SyncPreview(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	plan, err := r.service.Preview(ctx, int64(cmd.IntArg("binding-id")))
	if err != nil {
		return err
	}
	return r.writePlain("%s", formatter.PlanToText(plan))
}

// SyncRun syncs one binding with the plan's default selections.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	summary, err := r.runSync(ctx, int64(cmd.IntArg("binding-id")))
	if err != nil {
		return err
	}
	return r.writePlain("%s", formatter.SummaryToText(summary))
}

// runSync executes one binding's sync, streaming progress to the log.
func (r *Runner) runSync(ctx context.Context, bindingID int64) (*librarysync.Summary, error) {
	progress := make(chan librarysync.ProgressEvent, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range progress {
			if event.Terminal {
				continue
			}
			r.logger.Info("sync progress", "change", event.ChangeID, "state", event.State, "msg", event.Message)
		}
	}()

	summary, err := r.service.Sync(ctx, bindingID, progress)
	close(progress)
	<-done
	return summary, err
}

// SyncAll runs every binding through the job queue with the configured
// concurrency bounds.
func (r *Runner) SyncAll(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	bindings, err := r.store.Bindings.List()
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return r.writePlain("no bindings configured\n")
	}

	queue := tasks.NewQueue(r.config.Sync.MaxGlobalConcurrency, r.config.Sync.MaxPerAdapterConcurrency, r.logger)
	queueCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	queue.Start(queueCtx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := &librarysync.Summary{}

	for _, binding := range bindings {
		binding := binding
		wg.Add(1)
		_, err := queue.Submit(&tasks.Job{
			ID:      fmt.Sprintf("sync-binding-%d", binding.ID),
			Adapter: string(binding.Platform),
			Run: func(ctx context.Context) error {
				summary, err := r.service.Sync(ctx, binding.ID, nil)
				if summary != nil {
					mu.Lock()
					total.Applied += summary.Applied
					total.Skipped += summary.Skipped
					total.Failed += summary.Failed
					total.Details = append(total.Details, summary.Details...)
					mu.Unlock()
				}
				return err
			},
			Done: func(err error) {
				defer wg.Done()
				if err != nil {
					r.logger.Error("binding sync failed", "binding", binding.ID, "err", err)
				}
			},
		})
		if err != nil {
			wg.Done()
			return err
		}
	}

	wg.Wait()
	queue.Shutdown()
	return r.writePlain("%s", formatter.SummaryToText(total))
}

// SyncImport pulls a platform playlist into the library as a new
// import-only binding.
func (r *Runner) SyncImport(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	platform := models.Platform(cmd.String("platform"))
	if !platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", shared.ErrInvalidInput, platform)
	}

	summary, err := r.service.Import(ctx, platform, cmd.String("id"), nil)
	if err != nil {
		return err
	}
	return r.writePlain("%s", formatter.SummaryToText(summary))
}

// SyncExport pushes a local playlist to a platform, creating the remote
// playlist on the first sync.
func (r *Runner) SyncExport(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	platform := models.Platform(cmd.String("platform"))
	if !platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", shared.ErrInvalidInput, platform)
	}

	mode := models.SyncMode(cmd.String("mode"))
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown sync mode %q", shared.ErrInvalidInput, mode)
	}

	summary, err := r.service.Export(ctx, int64(cmd.Int("playlist-id")), platform, mode, nil)
	if err != nil {
		return err
	}
	return r.writePlain("%s", formatter.SummaryToText(summary))
}
