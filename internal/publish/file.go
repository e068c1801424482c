package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"simscan/internal/sim"
)

// FileSink keeps the latest records in a JSON file. A full scan replaces
// the file; a targeted scan replaces or appends the record of its port.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Name() string { return "file" }

// Path returns the file the sink writes.
func (f *FileSink) Path() string { return f.path }

func (f *FileSink) Publish(ctx context.Context, snap *sim.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := snap.Records
	if snap.Mode == sim.ModeTargeted {
		saved, err := f.load()
		if err != nil {
			return err
		}
		records = mergeByPort(saved, snap.Records)
	}
	if records == nil {
		records = []sim.Record{}
	}
	return f.write(records)
}

// Load returns the saved records, or an empty list when nothing is saved.
func (f *FileSink) Load() ([]sim.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Reset removes the saved records.
func (f *FileSink) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", f.path, err)
	}
	return nil
}

func (f *FileSink) load() ([]sim.Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []sim.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []sim.Record{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []sim.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if records == nil {
		records = []sim.Record{}
	}
	return records, nil
}

// write replaces the file through a temporary sibling so readers never see
// a half written file.
func (f *FileSink) write(records []sim.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sim_data-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}
	return nil
}

// mergeByPort replaces saved records whose port was refreshed and appends
// records for ports not seen before.
func mergeByPort(saved, fresh []sim.Record) []sim.Record {
	out := append([]sim.Record(nil), saved...)
	for _, rec := range fresh {
		replaced := false
		for i := range out {
			if out[i].Port == rec.Port {
				out[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, rec)
		}
	}
	return out
}
