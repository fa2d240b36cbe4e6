package etl_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

func TestRotate_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"P_2024_01_01_00_01.csv",
		"P_2024_01_01_00_02.csv",
		"P_2024_01_01_00_03.csv",
		"P_2024_01_01_00_04.csv",
		"P_2024_01_01_00_05.csv",
	}
	for _, n := range names {
		touch(t, dir, n)
	}

	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(dir, "P", "csv", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	for _, n := range names[:2] {
		assert.NoFileExists(t, filepath.Join(dir, n))
		assert.FileExists(t, filepath.Join(dir, etl.ArchiveDirName, n))
	}
	for _, n := range names[2:] {
		assert.FileExists(t, filepath.Join(dir, n))
	}
}

func TestRotate_NoopWithinRetention(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "P_2024_01_01_00_01.csv")
	touch(t, dir, "P_2024_01_01_00_02.csv")

	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(dir, "P", "csv", 3)
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.NoDirExists(t, filepath.Join(dir, etl.ArchiveDirName))
}

func TestRotate_ReplacesArchivedDuplicate(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, etl.ArchiveDirName)
	require.NoError(t, os.MkdirAll(archive, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "P_2024_01_01_00_01.csv"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "P_2024_01_01_00_01.csv"), []byte("new"), 0o644))
	touch(t, dir, "P_2024_01_01_00_02.csv")

	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(dir, "P", "csv", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	b, err := os.ReadFile(filepath.Join(archive, "P_2024_01_01_00_01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestRotate_IgnoresOtherJobs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "P_2024_01_01_00_01.csv")
	touch(t, dir, "Q_2024_01_01_00_01.csv")
	touch(t, dir, "P_2024_01_01_00_01.xlsx")

	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(dir, "P", "csv", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.FileExists(t, filepath.Join(dir, "Q_2024_01_01_00_01.csv"))
	assert.FileExists(t, filepath.Join(dir, "P_2024_01_01_00_01.xlsx"))
}

func TestRotate_MissingDirIsNotAnError(t *testing.T) {
	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(filepath.Join(t.TempDir(), "nope"), "P", "csv", 3)
	assert.NoError(t, err)
	assert.Zero(t, moved)
}

func TestRotate_FailedMoveDoesNotStopTheRest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"P_2024_01_01_00_01.csv",
		"P_2024_01_01_00_02.csv",
		"P_2024_01_01_00_03.csv",
		"P_2024_01_01_00_04.csv",
		"P_2024_01_01_00_05.csv",
	}
	for _, n := range names {
		touch(t, dir, n)
	}
	blocked := filepath.Join(dir, etl.ArchiveDirName, names[0])
	require.NoError(t, os.MkdirAll(blocked, 0o755))
	touch(t, blocked, "keep")

	moved, err := (&etl.ArchiveRotator{Log: logging.Discard()}).Rotate(dir, "P", "csv", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), names[0])
	assert.Equal(t, 2, moved)

	assert.FileExists(t, filepath.Join(dir, names[0]))
	for _, n := range names[1:3] {
		assert.FileExists(t, filepath.Join(dir, etl.ArchiveDirName, n))
	}
}
