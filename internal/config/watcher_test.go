package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSettingsWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()

	received := make(chan *Settings, 4)
	w, err := NewSettingsWatcher(dir, func(s *Settings) {
		received <- s
	})
	require.NoError(t, err)
	defer w.Stop()

	s := Default()
	s.MaxItems = 555
	require.NoError(t, Save(dir, s))

	select {
	case s := <-received:
		require.Equal(t, 555, s.MaxItems)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settings reload")
	}
}

func TestSettingsWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()

	var count int
	done := make(chan struct{})
	w, err := NewSettingsWatcher(dir, func(s *Settings) {
		count++
		select {
		case done <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	for i := 0; i < 5; i++ {
		s := Default()
		s.MaxItems = 100 + i
		require.NoError(t, Save(dir, s))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced reload")
	}
	// Give any additional debounced callbacks a chance to fire before
	// asserting the burst collapsed to a small number of reloads.
	time.Sleep(250 * time.Millisecond)
	require.Less(t, count, 5, "five rapid writes should not trigger five separate reloads")
}

func TestSettingsWatcher_IgnoresMalformedWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, Default()))

	received := make(chan *Settings, 1)
	w, err := NewSettingsWatcher(dir, func(s *Settings) { received <- s })
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yml"), []byte("not: [valid yaml"), 0o644))

	select {
	case <-received:
		t.Fatal("malformed settings.yml should not trigger a reload callback")
	case <-time.After(500 * time.Millisecond):
	}
}
