// Daemon lifecycle commands, adapted from the teacher's
// indexer_start.go/indexer_status.go/indexer_stop.go trio and
// internal/daemon's singleton+socket machinery. Unlike the indexer daemon,
// `scopy daemon start` serves no RPC surface of its own — it is the
// long-running process that holds the Service Facade's single-writer lock
// open, runs the cleanup scheduler's orphan sweep and the ingest pipeline
// for an embedding app; `search`/`stats`/`cleanup` are meant for one-off use
// against a data root the daemon is not currently holding. The bound Unix
// socket exists purely for singleton enforcement and a minimal
// status/shutdown surface, not a query protocol (spec: no network sync).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/daemon"
	"github.com/suehn/scopy/internal/pasteboard"
	"github.com/suehn/scopy/internal/service"
)

var daemonStatusJSON bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Resident daemon commands",
	Long:  `Manage the resident Scopy daemon process.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the resident scopy daemon",
	Long: `Start the scopy daemon: acquires the data directory lock, opens the
Service Facade, and runs the ingest pipeline, search engine and cleanup
scheduler until stopped.

Singleton enforcement (Unix socket bind + file lock, mirroring the teacher's
indexer daemon) ensures only one daemon runs per data root at a time.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the resident scopy daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resident daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonStatusCmd.Flags().BoolVar(&daemonStatusJSON, "json", false, "output as JSON")
}

type statusResponse struct {
	Running   bool  `json:"running"`
	PID       int   `json:"pid"`
	StartedAt int64 `json:"started_at"`
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	singleton := daemon.NewSingletonDaemon("scopyd", globalCfg.Daemon.SocketPath)
	won, err := singleton.EnforceSingleton()
	if err != nil {
		return fmt.Errorf("singleton check failed: %w", err)
	}
	if !won {
		fmt.Println("scopy daemon already running")
		return nil
	}
	defer singleton.Release()

	f := service.New(globalCfg.Cache.BaseDir, pasteboard.NewMemoryWriter())
	if err := f.Start(ctx); err != nil {
		return fmt.Errorf("failed to start facade: %w", err)
	}
	defer f.Stop()

	listener, err := singleton.BindSocket()
	if err != nil {
		return fmt.Errorf("failed to bind socket: %w", err)
	}
	defer listener.Close()
	if err := os.Chmod(globalCfg.Daemon.SocketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	startedAt := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatusJSON(w, statusResponse{Running: true, PID: os.Getpid(), StartedAt: startedAt.Unix()})
	})
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		go cancel()
	})
	httpServer := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("scopy daemon started (PID %d) on %s\n", os.Getpid(), globalCfg.Daemon.SocketPath)

	if err := httpServer.Serve(listener); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := daemonHTTPClient(globalCfg.Daemon.SocketPath)
	resp, err := client.Post("http://scopyd/shutdown", "application/json", nil)
	if err != nil {
		if daemon.IsConnectionError(err) {
			return fmt.Errorf("daemon not running. Start with: scopy daemon start")
		}
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	defer resp.Body.Close()

	fmt.Println("scopy daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := daemonHTTPClient(globalCfg.Daemon.SocketPath)
	resp, err := client.Get("http://scopyd/healthz")
	if err != nil {
		status := statusResponse{Running: false}
		if daemonStatusJSON {
			return printJSON(status)
		}
		fmt.Println("scopy daemon: not running")
		return nil
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	if daemonStatusJSON {
		return printJSON(status)
	}
	fmt.Printf("scopy daemon: running (PID %d, started %s)\n", status.PID, time.Unix(status.StartedAt, 0).Format(time.RFC3339))
	return nil
}

func writeStatusJSON(w http.ResponseWriter, status statusResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func daemonHTTPClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}
