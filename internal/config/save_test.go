package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_WritesLoadableSettings(t *testing.T) {
	root := t.TempDir()

	s := Default()
	s.MaxItems = 42
	s.SaveImages = false

	require.NoError(t, Save(root, s))
	assert.FileExists(t, filepath.Join(root, "settings.yml"))

	loaded, err := LoadSettingsFromDir(root)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.MaxItems)
	assert.False(t, loaded.SaveImages)
}

func TestSave_RejectsInvalidSettings(t *testing.T) {
	root := t.TempDir()

	s := Default()
	s.MaxItems = -1

	err := Save(root, s)
	assert.Error(t, err)
}
