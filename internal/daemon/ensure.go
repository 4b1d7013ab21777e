// Package daemon provides reusable daemon lifecycle management for the
// scopy background process (scopyd): client-side auto-start, daemon-side
// singleton enforcement, and connection-error detection.
//
// # Core Components
//
// 1. Client-Side Auto-Start (EnsureDaemon)
//   - Ensures scopyd is running before a CLI command talks to it
//   - NO client-side locking (multiple spawns allowed)
//   - Daemon-side singleton enforcement prevents duplicates
//   - Safe to call concurrently from multiple CLI invocations
//
// 2. Daemon-Side Singleton Enforcement (SingletonDaemon)
//   - Prevents multiple scopyd processes using socket bind + file lock
//   - Losing daemons exit gracefully (code 0)
//   - File lock prevents race conditions during startup
//
// 3. Connection Error Detection (IsConnectionError)
//   - Identifies daemon connection failures for the resurrection pattern
//   - Used by `scopy daemon stop` to report a daemon that is not running
//
// # Usage Pattern: Client Auto-Start
//
// A client that talks to scopyd over its socket can use EnsureDaemon to
// start it on demand. The CLI commands in this module (search, stats,
// cleanup) open their own Service Facade instead and do not call it:
//
//	func (c *Client) Search(ctx context.Context, req search.Request) (search.ResultPage, error) {
//	    cfg, err := daemon.NewDaemonConfig(
//	        "scopyd",
//	        "~/.scopy/scopyd.sock",
//	        []string{"scopy", "daemon", "start"},
//	        30 * time.Second,
//	    )
//	    if err != nil {
//	        return search.ResultPage{}, fmt.Errorf("invalid daemon config: %w", err)
//	    }
//
//	    if err := daemon.EnsureDaemon(ctx, cfg); err != nil {
//	        return search.ResultPage{}, fmt.Errorf("failed to ensure daemon: %w", err)
//	    }
//
//	    return c.search(ctx, req)
//	}
//
// # Usage Pattern: Daemon Singleton Enforcement
//
// scopyd uses SingletonDaemon to prevent duplicate processes:
//
//	func main() {
//	    singleton := daemon.NewSingletonDaemon("scopyd", "~/.scopy/scopyd.sock")
//
//	    won, err := singleton.EnforceSingleton()
//	    if err != nil {
//	        log.Fatalf("Singleton check failed: %v", err)
//	    }
//
//	    if !won {
//	        fmt.Println("scopyd already running")
//	        os.Exit(0)
//	    }
//
//	    defer singleton.Release()
//
//	    listener, _ := singleton.BindSocket()
//	    serve(listener)
//	}
//
// # Usage Pattern: Resurrection (Client Auto-Restart)
//
// A socket client can use IsConnectionError to detect and resurrect a
// daemon that has exited:
//
//	resp, err := client.call(ctx, req)
//	if daemon.IsConnectionError(err) {
//	    if err := daemon.EnsureDaemon(ctx, ensureConfig); err != nil {
//	        return nil, fmt.Errorf("resurrection failed: %w", err)
//	    }
//	    resp, err = client.call(ctx, req)
//	}
//
// # Concurrent Client Spawns
//
// Multiple CLI invocations can call EnsureDaemon simultaneously. All spawn
// a scopyd process, but daemon-side singleton enforcement ensures only one
// survives:
//
//	Flow:
//	  1. All clients see the socket dial fail (daemon not running)
//	  2. All clients spawn "scopy daemon start" (no client-side locks)
//	  3. Every spawned daemon calls EnforceSingleton()
//	  4. ONE daemon wins (socket bind + file lock succeed)
//	  5. The rest lose (EADDRINUSE) and exit code 0
//	  6. All clients wait for the socket to be dialable and connect to the winner
package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
)

// EnsureDaemon ensures daemon is running, starting it if needed.
// Safe to call concurrently from multiple clients.
// If multiple clients spawn multiple daemons, daemon-side singleton
// enforcement ensures only one daemon wins. Losing daemons exit gracefully.
// Returns nil if daemon is healthy (already running or successfully started).
//
// Flow:
//  1. Fast path: Check if socket is dialable → return immediately
//  2. Spawn daemon in detached process group
//  3. Wait for socket to become dialable (with timeout)
//
// Note: Multiple clients may spawn multiple daemon processes simultaneously.
// Daemon-side singleton enforcement (socket bind + file lock) ensures only
// one daemon wins. Losing daemons detect they lost and exit gracefully (code 0).
//
// Example usage:
//
//	cfg, _ := daemon.NewDaemonConfig(
//	    "scopyd",
//	    "/tmp/scopyd.sock",
//	    []string{"scopy", "daemon", "start"},
//	    30 * time.Second,
//	)
//	err := daemon.EnsureDaemon(ctx, cfg)
func EnsureDaemon(ctx context.Context, cfg *DaemonConfig) error {
	// 1. Fast path: check if socket is dialable
	if canDial(cfg.SocketPath) {
		return nil
	}

	// 2. Spawn daemon (detached)
	// Multiple clients may spawn multiple daemons - that's OK
	// Daemon-side singleton enforcement ensures only one wins
	cmd := exec.Command(cfg.StartCommand[0], cfg.StartCommand[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Detach from parent process group
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// 3. Wait for socket to become dialable
	// If multiple daemons spawned, only one passes EnforceSingleton
	// Others exit gracefully, this client just waits for the winner
	return waitForHealthy(ctx, cfg)
}
