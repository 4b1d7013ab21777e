package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// cleanupSpinner wraps a progressbar.ProgressBar in indeterminate mode
// (spinner) while the `cleanup` command's synchronous cleanup pass runs,
// adapted from the teacher's CLIProgressReporter's
// determinate bars — here the total item count isn't known up front, so
// this ticks on a timer instead of Add()-per-item.
type cleanupSpinner struct {
	quiet bool
	bar   *progressbar.ProgressBar
	stop  chan struct{}
	done  chan struct{}
}

// startCleanupSpinner starts a spinner with the given description, unless
// quiet is set. Call stopAndFinish() when the underlying operation completes.
func startCleanupSpinner(quiet bool, description string) *cleanupSpinner {
	s := &cleanupSpinner{quiet: quiet}
	if quiet {
		return s
	}

	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(80*time.Millisecond),
	)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.bar.Add(1)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *cleanupSpinner) stopAndFinish() {
	if s.quiet {
		return
	}
	close(s.stop)
	<-s.done
	s.bar.Finish()
	fmt.Println()
}

// formatNumber formats an integer with thousand separators, e.g. 1234 ->
// "1,234", for human-readable cleanup/status summaries.
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
