// Package manifest records the outcome of a prerender run.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of a single route.
type Status string

// Route outcomes.
const (
	StatusWritten       Status = "written"
	StatusCaptureFailed Status = "capture_failed"
	StatusWriteFailed   Status = "write_failed"
)

// SEO holds the head metadata found in a rendered document.
type SEO struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
}

// Entry describes what happened to one route.
type Entry struct {
	Seq        int    `json:"seq"`
	Route      string `json:"route"`
	Status     Status `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
	MirrorURI  string `json:"mirror_uri,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Ready      bool   `json:"ready"`
	CaptureMS  int64  `json:"capture_ms"`
	Error      string `json:"error,omitempty"`
	SEO        SEO    `json:"seo"`
}

// Succeeded reports whether the route produced an output file.
func (e Entry) Succeeded() bool {
	return e.Status == StatusWritten
}

// Summary counts entries by outcome.
type Summary struct {
	Total   int `json:"total"`
	Written int `json:"written"`
	Failed  int `json:"failed"`
}

// Manifest is the report of one run. Record is safe for concurrent use.
type Manifest struct {
	mu         sync.Mutex
	RunID      string    `json:"run_id"`
	OutputDir  string    `json:"output_dir"`
	BaseURL    string    `json:"base_url,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
	Entries    []Entry   `json:"entries"`
}

// New starts a manifest for a run.
func New(runID, outputDir string, startedAt time.Time) *Manifest {
	return &Manifest{
		RunID:     runID,
		OutputDir: outputDir,
		StartedAt: startedAt,
		Entries:   []Entry{},
	}
}

// Record appends the outcome of one route.
func (m *Manifest) Record(e Entry) {
	m.mu.Lock()
	m.Entries = append(m.Entries, e)
	m.mu.Unlock()
}

// Finish orders entries by route sequence and fills in the summary.
func (m *Manifest) Finish(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.Entries, func(i, j int) bool {
		return m.Entries[i].Seq < m.Entries[j].Seq
	})
	sum := Summary{Total: len(m.Entries)}
	for _, e := range m.Entries {
		if e.Succeeded() {
			sum.Written++
		} else {
			sum.Failed++
		}
	}
	m.Summary = sum
	m.FinishedAt = at
}

// Snapshot returns a copy of the recorded entries.
func (m *Manifest) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.Entries...)
}

// Failed returns the entries that did not produce an output file.
func (m *Manifest) Failed() []Entry {
	var failed []Entry
	for _, e := range m.Snapshot() {
		if !e.Succeeded() {
			failed = append(failed, e)
		}
	}
	return failed
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile encodes the manifest to path, replacing any previous file.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
