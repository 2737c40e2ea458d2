// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SettingsStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get(KeyRemoteBaseURL)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyRemoteBaseURL, "https://hub.example.com"))
	value, ok, err := s.Get(KeyRemoteBaseURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://hub.example.com", value)
}

func TestSettingsOverwrite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set(KeyRemoteToken, "first"))
	require.NoError(t, s.Set(KeyRemoteToken, "second"))

	value, ok, err := s.Get(KeyRemoteToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", value)
}

func TestSettingsDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set(KeyRemoteConnected, "true"))
	require.NoError(t, s.Delete(KeyRemoteConnected))

	_, ok, err := s.Get(KeyRemoteConnected)
	require.NoError(t, err)
	assert.False(t, ok)

	// Absent key is fine.
	require.NoError(t, s.Delete(KeyRemoteConnected))
}

func TestSettingsEmptyValueStored(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set(KeyRemoteToken, ""))
	value, ok, err := s.Get(KeyRemoteToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestSettingsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyRemoteBaseURL, "https://hub.example.com"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	value, ok, err := s.Get(KeyRemoteBaseURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://hub.example.com", value)
}

func TestDefaultPathHonorsStateDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KERNELBRIDGE_STATE_DIR", dir)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "settings.db"), path)
}
