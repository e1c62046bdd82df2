package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/desertthunder/pulsemix/internal/server"
	"github.com/desertthunder/pulsemix/internal/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API with the persistent OAuth callbacks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := r.router(st)
	if err != nil {
		return err
	}

	schedule := cmd.String("schedule")
	if schedule == "" {
		schedule = r.config.Sync.Schedule
	}
	if schedule != "" {
		scheduler, err := r.scheduleSync(ctx, st, schedule)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := cmd.Int("port")
	if port == 0 {
		port = r.config.Server.Port
	}

	return server.Serve(ctx, net.JoinHostPort(host, strconv.Itoa(port)), router, r.logger, nil)
}

// router mounts the JSON API, the OAuth callbacks, and the metrics endpoint.
func (r *Runner) router(st *stack) (*server.BasicRouter, error) {
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))

	opts := server.APIOptions{
		Engine:      st.engine,
		DefaultUser: r.config.Sync.UserID,
		Metrics:     promhttp.HandlerFor(st.registry, promhttp.HandlerOpts{}),
		Logger:      r.logger,
	}
	var callbacks []server.Handler
	if st.whoop != nil {
		opts.Whoop = st.whoop
		_, path, err := callbackRoute(r.config.Credentials.Whoop.RedirectURI, "/callback")
		if err != nil {
			return nil, err
		}
		callbacks = append(callbacks, server.NewOAuthHandler("Whoop", path, st.whoop, false, r.logger))
	}
	if st.spotify != nil {
		opts.Spotify = st.spotify
		opts.Catalog = st.spotify
		_, path, err := callbackRoute(r.config.Credentials.Spotify.RedirectURI, "/spotify/callback")
		if err != nil {
			return nil, err
		}
		callbacks = append(callbacks, server.NewOAuthHandler("Spotify", path, st.spotify, false, r.logger))
	}

	api := server.NewAPI(opts)
	if err := server.CheckRoutes(api.Routes(), callbacks...); err != nil {
		return nil, fmt.Errorf("check redirect_uri paths: %w", err)
	}
	for _, callback := range callbacks {
		router.Handler(callback)
	}
	api.Register(router)
	return router, nil
}

// scheduleSync re-syncs every stored user from the metric provider on schedule.
func (r *Runner) scheduleSync(ctx context.Context, st *stack, schedule string) (*cron.Cron, error) {
	if st.whoop == nil {
		return nil, fmt.Errorf("sync schedule %q needs whoop credentials", schedule)
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		users, err := st.syncUsers(ctx, r.config.Sync.UserID)
		if err != nil {
			r.logger.Error("scheduled sync: failed to list users", "error", err)
			return
		}
		batch, err := st.engine.FetchAll(ctx, nil, users, tasks.BatchOpts{})
		if err != nil {
			r.logger.Error("scheduled sync failed", "error", err)
			return
		}
		r.logger.Info("scheduled sync complete", "succeeded", batch.Succeeded, "failed", batch.Failed)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	r.logger.Info("scheduled provider sync", "schedule", schedule)
	return scheduler, nil
}
