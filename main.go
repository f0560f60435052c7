package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/larscolombia/kapa/internal/db"
	mw "github.com/larscolombia/kapa/internal/middleware"
	"github.com/larscolombia/kapa/internal/router"
	"github.com/larscolombia/kapa/internal/scheduler"
	"github.com/larscolombia/kapa/internal/seed"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "kapa",
		Short:         "Kapa - HSE compliance backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env", "", "env file to load (default .env)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("env")
	return v
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, conn, err := setup(ctx, envFlag(cmd))
			if err != nil {
				return err
			}
			defer conn.Close()

			if skip, _ := cmd.Flags().GetBool("skip-migrate"); !skip {
				if err := db.Migrate(conn); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cfg, conn)
			if err != nil {
				return err
			}
			if err := a.auth.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPass); err != nil {
				logrus.WithError(err).Warn("seed admin failed")
			}

			sched := scheduler.New(scheduler.CleanupJobs(a.repos.submissions, a.repos.ilv, nil)...)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			limiter := mw.NewRateLimiter(cfg.PublicRateLimit, int(cfg.PublicRateLimit*2))
			limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

			rc := a.routes()
			rc.CloseLimiter = limiter
			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router.New(rc, a.handlers()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("addr", cfg.HTTPAddr).Info("kapa server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logrus.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().Bool("skip-migrate", false, "do not apply pending migrations on start")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := setup(cmd.Context(), envFlag(cmd))
			if err != nil {
				return err
			}
			defer conn.Close()

			if down, _ := cmd.Flags().GetInt("down"); down > 0 {
				if err := db.MigrateDown(conn, down); err != nil {
					return err
				}
				logrus.WithField("steps", down).Info("migrations rolled back")
				return nil
			}
			return db.Migrate(conn)
		},
	}
	cmd.Flags().Int("down", 0, "roll back this many migrations instead")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run the housekeeping jobs once (expired drafts, old close tokens)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(cmd.Context(), envFlag(cmd))
			if err != nil {
				return err
			}
			defer conn.Close()

			a, err := newApp(cmd.Context(), cfg, conn)
			if err != nil {
				return err
			}
			return scheduler.RunOnce(cmd.Context(), scheduler.CleanupJobs(a.repos.submissions, a.repos.ilv, nil))
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load roles, permissions, maestros, criteria and form templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, conn, err := setup(ctx, envFlag(cmd))
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(conn); err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, conn)
			if err != nil {
				return err
			}

			file, _ := cmd.Flags().GetString("file")
			fixtures, err := seed.Load(file)
			if err != nil {
				return err
			}
			s := &seed.Seeder{
				Roles:    a.repos.access,
				Maestros: a.repos.maestros,
				Criteria: a.compliance,
				Forms:    a.forms,
			}
			if err := s.Apply(ctx, fixtures); err != nil {
				return err
			}
			return a.auth.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPass)
		},
	}
	cmd.Flags().String("file", "", "fixtures YAML (default: built-in set)")
	return cmd
}
