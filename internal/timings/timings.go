// Package timings records how long each runner stage took.
package timings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aurora/internal/pkg/errors"
)

const FileName = "timings.json"

// Record maps stage names to elapsed seconds.
type Record struct {
	mu     sync.Mutex
	stages map[string]float64
	now    func() time.Time
}

func New() *Record {
	return &Record{stages: make(map[string]float64), now: time.Now}
}

func (r *Record) Set(stage string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage] = d.Seconds()
}

// Track runs fn and records its duration under stage, also when fn fails.
func (r *Record) Track(stage string, fn func() error) error {
	start := r.now()
	err := fn()
	r.Set(stage, r.now().Sub(start))
	return err
}

// Snapshot returns a copy of the recorded stages.
func (r *Record) Snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.stages))
	for k, v := range r.stages {
		out[k] = v
	}
	return out
}

// Save writes the record as indented JSON to dir/timings.json.
func (r *Record) Save(dir string) (string, error) {
	const op = "timings.save"

	b, err := json.MarshalIndent(r.Snapshot(), "", "    ")
	if err != nil {
		return "", errors.Wrap(err, op, "failed to encode timings")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, op, "failed to create output directory")
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", errors.Wrap(err, op, "failed to write timings").WithField("path", path)
	}
	return path, nil
}
