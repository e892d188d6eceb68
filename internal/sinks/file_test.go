package sinks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

func writeTestEvent(t *testing.T, f *File) {
	t.Helper()
	ev, err := eventmodel.New(eventmodel.SourceProcess, 7, "sh", map[string]string{"event": "FILE_OPEN"})
	require.NoError(t, err)
	require.NoError(t, f.Write(ev))
}

func TestFile_RotatesWhenOverSizeAndChecked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")

	f, err := NewFile(FileConfig{
		Path:                    path,
		MaxFileSizeBytes:        1, // rotate on first checked write
		MaxFiles:                3,
		SizeCheckIntervalEvents: 1,
	}, nil)
	require.NoError(t, err)
	defer f.Close()

	writeTestEvent(t, f)
	writeTestEvent(t, f)

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
}

func TestFile_ShiftsSuffixesOnRepeatedRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")

	f, err := NewFile(FileConfig{
		Path:                    path,
		MaxFileSizeBytes:        1,
		MaxFiles:                2,
		SizeCheckIntervalEvents: 1,
	}, nil)
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 4; i++ {
		writeTestEvent(t, f)
	}

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestFile_CompressRotatedGzipsRotatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")

	f, err := NewFile(FileConfig{
		Path:                    path,
		MaxFileSizeBytes:        1,
		MaxFiles:                2,
		SizeCheckIntervalEvents: 1,
		CompressRotated:         true,
	}, nil)
	require.NoError(t, err)
	defer f.Close()

	writeTestEvent(t, f)
	writeTestEvent(t, f)

	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	// gzip magic number
	assert.Equal(t, byte(0x1f), data[0])
	assert.Equal(t, byte(0x8b), data[1])
}

func TestFile_DoesNotDropEventsWhenWritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")

	f, err := NewFile(FileConfig{
		Path:                    path,
		MaxFileSizeBytes:        1,
		MaxFiles:                1,
		SizeCheckIntervalEvents: 1,
	}, nil)
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 5; i++ {
		writeTestEvent(t, f)
	}

	// Every write returned nil above (require.NoError inside the helper),
	// so all 5 events were accepted regardless of how many rotations ran.
	assert.FileExists(t, path)
}
