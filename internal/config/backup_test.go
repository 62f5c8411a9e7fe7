package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_MissingFileIsNoop(t *testing.T) {
	path, err := Backup(filepath.Join(t.TempDir(), ProjectConfigName))
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackup_KeepsNewestThree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigName)
	writeFile(t, path, "version: 1\n")

	var made []string
	for i := 0; i < 5; i++ {
		b, err := Backup(path)
		require.NoError(t, err)
		require.NotEmpty(t, b)
		made = append(made, b)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, made[4], backups[0], "newest first")
}

func TestRestore_BacksUpCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigName)
	writeFile(t, path, "old\n")
	backup, err := Backup(path)
	require.NoError(t, err)

	writeFile(t, path, "new\n")
	require.NoError(t, Restore(path, backup))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data))

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}
