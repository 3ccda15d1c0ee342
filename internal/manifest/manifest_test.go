package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinishOrdersEntriesAndSummarizes(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := New("run-1", "/srv/dist", start)

	var wg sync.WaitGroup
	for i, status := range []Status{StatusWritten, StatusCaptureFailed, StatusWritten, StatusWriteFailed} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(Entry{Seq: i, Route: "/r", Status: status})
		}()
	}
	wg.Wait()
	m.Finish(start.Add(time.Minute))

	require.Len(t, m.Entries, 4)
	for i, e := range m.Entries {
		assert.Equal(t, i, e.Seq)
	}
	assert.Equal(t, Summary{Total: 4, Written: 2, Failed: 2}, m.Summary)
	assert.Equal(t, start.Add(time.Minute), m.FinishedAt)
	assert.Len(t, m.Failed(), 2)
}

func TestWriteFileRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "prerender.json")
	m := New("run-2", dir, time.Unix(0, 0).UTC())
	m.Record(Entry{Seq: 0, Route: "/", Status: StatusWritten, Bytes: 42, SHA256: "abc"})
	m.Finish(time.Unix(10, 0).UTC())

	require.NoError(t, m.WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-2", decoded["run_id"])
	entries, ok := decoded["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, "written", first["status"])
	assert.EqualValues(t, 42, first["bytes"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".manifest-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEmptyManifestEncodesEntriesArray(t *testing.T) {
	t.Parallel()

	m := New("run-3", "dist", time.Unix(0, 0).UTC())
	m.Finish(time.Unix(0, 0).UTC())
	data, err := m.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries": []`)
}
