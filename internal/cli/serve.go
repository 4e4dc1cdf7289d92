package cli

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/gx"
	"github.com/docforge/docforge/internal/handlers"
	"github.com/docforge/docforge/internal/ingest"
	"github.com/docforge/docforge/internal/jobs"
	"github.com/docforge/docforge/internal/lifecycle"
	"github.com/docforge/docforge/internal/pipeline"
	"github.com/docforge/docforge/internal/queue"
	"github.com/docforge/docforge/internal/storage"
	"github.com/docforge/docforge/internal/store"
	"github.com/docforge/docforge/internal/uploader"
)

// services bundles everything a running node needs.
type services struct {
	cfg      *config.Config
	store    *store.Store
	storage  *storage.Client
	queue    *queue.Client
	gxClient *gx.Client
	uploader *uploader.Uploader
	manager  *lifecycle.Manager
	worker   *gx.Worker
	jobs     *jobs.Service
	ingest   *ingest.Service
	pipeline *pipeline.Service
}

// buildServices wires the full dependency graph from configuration.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	st, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}

	objects, err := storage.NewClient(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	q, err := queue.NewClient(ctx, cfg.Storage.Region)
	if err != nil {
		st.Close()
		return nil, err
	}

	gxClient := gx.NewClient(cfg)
	up := uploader.New(objects, cfg.Zip.TempDir)
	manager := lifecycle.NewManager(cfg, st, q)
	worker := gx.NewWorker(cfg, st, gxClient, q)
	registry := handlers.NewRegistry(cfg)

	return &services{
		cfg:      cfg,
		store:    st,
		storage:  objects,
		queue:    q,
		gxClient: gxClient,
		uploader: up,
		manager:  manager,
		worker:   worker,
		jobs:     jobs.New(cfg, st, jobs.StoreTxRunner{Store: st}, objects, q),
		ingest:   ingest.New(cfg, st, objects, q, gxClient, manager),
		pipeline: pipeline.New(cfg, st, objects, q, up, manager, registry),
	}, nil
}

func (s *services) close() {
	s.uploader.Wait()
	s.store.Close()
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion workers and schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.close()

			return runServe(ctx, svc)
		},
	}
}

// runServe supervises the consumers and the cron schedulers until the
// context is cancelled. Consumers finish their in-flight message; the
// broker visibility timeout covers everything else.
func runServe(ctx context.Context, svc *services) error {
	logger.Info().Msg("Docforge node starting")

	sched := cron.New(cron.WithSeconds())
	entries := []struct {
		expr string
		name string
		run  func(context.Context) error
	}{
		{svc.cfg.Scheduler.JobCompletionCron, "reconcile",
			lifecycle.NewReconciler(svc.store, svc.manager).Run},
		{svc.cfg.Scheduler.FetchDocStatusCron, "gx-submit", svc.worker.SubmitPending},
		{svc.cfg.Scheduler.FetchDocStatusCron, "gx-poll", svc.worker.PollStatuses},
		{svc.cfg.Scheduler.StaleJobCron, "stale-sweep", svc.worker.SweepStaleJobs},
	}
	for _, e := range entries {
		e := e
		if _, err := sched.AddFunc(e.expr, func() {
			if err := e.run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Str("task", e.name).Msg("Scheduled task failed")
			}
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	zipConsumer := queue.NewConsumer(svc.queue, "zip", svc.cfg.Queue.ZipQueueURL, svc.ingest.HandleMessage)
	fileConsumer := queue.NewConsumer(svc.queue, "file", svc.cfg.Queue.FileQueueURL, svc.pipeline.HandleMessage)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return zipConsumer.Run(gctx) })
	g.Go(func() error { return fileConsumer.Run(gctx) })

	err := g.Wait()
	logger.Info().Msg("Docforge node stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
