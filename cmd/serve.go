package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/issues/internal/api"
	"github.com/joescharf/issues/internal/daemon"
)

var serveStopForce bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the issue tracker HTTP server",
	Long: `Start an HTTP server exposing /api/issues/{project}.

By default it listens on port 3000. Use --port to change it.
The server stops cleanly on SIGINT or SIGTERM, or via 'issues serve stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 3000, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveStopCmd.Flags().BoolVar(&serveStopForce, "force", false, "Kill the server instead of waiting for a graceful shutdown")

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file tracking the running server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "issues-serve.pid"))
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	if dryRun {
		ui.DryRunMsg("Would serve /api/issues/{project} on %s", addr)
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	defer func() { _ = dataStore.Close() }()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if err := pf.Acquire(); err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := pf.Release(); err != nil {
			slog.Warn("remove PID file", "path", pf.Path, "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	ui.Success("Serving issues API at http://localhost%s/api/issues/{project}", addr)
	handler := api.NewServer(svc, slog.Default()).Router()
	return runServer(ctx, ln, handler, viper.GetDuration("server.shutdown_timeout"))
}

// runServer serves on ln until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func runServer(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func serveStatusRun() error {
	pid, err := pidFile().Running()
	if errors.Is(err, daemon.ErrNotRunning) {
		ui.Info("Server is not running")
		return nil
	}
	if err != nil {
		return err
	}
	ui.Success("Server is running (PID %d)", pid)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, err := pf.Running()
	if err != nil {
		return fmt.Errorf("server %w", daemon.ErrNotRunning)
	}

	sig := sigTERM()
	if serveStopForce {
		sig = sigKILL()
	}
	if dryRun {
		ui.DryRunMsg("Would send %s to PID %d", sig, pid)
		return nil
	}
	if err := pf.Signal(sig); err != nil {
		return fmt.Errorf("signal PID %d: %w", pid, err)
	}

	deadline := time.Now().Add(viper.GetDuration("server.shutdown_timeout") + time.Second)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			if serveStopForce {
				_ = pf.Remove()
			}
			ui.Success("Server stopped (PID %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server (PID %d) did not stop in time; retry with --force", pid)
}
