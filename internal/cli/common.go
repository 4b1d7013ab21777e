package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/pasteboard"
	"github.com/suehn/scopy/internal/search"
	"github.com/suehn/scopy/internal/service"
	"github.com/suehn/scopy/internal/store"
)

// Exit codes, exactly as the spec's CLI surface defines them.
const (
	exitOK      = 0
	exitBadArgs = 1
	exitDbError = 2
	exitTimeout = 3
)

// errBadArgs flags a CLI-level validation failure (missing/invalid flag),
// distinct from a facade/store error, so exitCodeForErr can tell them apart.
var errBadArgs = errors.New("cli: invalid arguments")

func exitCodeForErr(err error) int {
	if err == nil {
		return exitOK
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, search.ErrTimeout):
		return exitTimeout
	case errors.Is(err, service.ErrDbOpen),
		errors.Is(err, service.ErrDbCorrupt),
		errors.Is(err, service.ErrIoFailed),
		errors.Is(err, service.ErrLockHeld),
		errors.Is(err, store.ErrDbBusy),
		errors.Is(err, store.ErrDiskFull),
		errors.Is(err, store.ErrCorrupt):
		return exitDbError
	case errors.Is(err, search.ErrRegexCompile), errors.Is(err, errBadArgs):
		return exitBadArgs
	default:
		return exitBadArgs
	}
}

// dataRoot resolves the app-data root this CLI invocation operates against,
// per the machine-wide GlobalConfig (spec §6.2's on-disk layout lives under
// this directory).
func dataRoot() (string, error) {
	gc, err := config.LoadGlobalConfig()
	if err != nil {
		return "", fmt.Errorf("loading global config: %w", err)
	}
	return gc.Cache.BaseDir, nil
}

// openFacade starts a short-lived Facade over the resolved data root for the
// duration of a single CLI invocation, and returns a closer to stop it. Used
// by search/stats/cleanup, which each own their own start/stop cycle rather
// than talking to a resident daemon process (see internal/cli/daemon.go for
// the long-running alternative).
func openFacade(ctx context.Context) (*service.Facade, func(), error) {
	root, err := dataRoot()
	if err != nil {
		return nil, nil, err
	}

	f := service.New(root, pasteboard.NewMemoryWriter())
	if err := f.Start(ctx); err != nil {
		return nil, nil, err
	}
	return f, f.Stop, nil
}
