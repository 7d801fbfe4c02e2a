package timings

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTrackRecordsFailures(t *testing.T) {
	r := New()
	clock := time.Unix(0, 0)
	r.now = func() time.Time {
		clock = clock.Add(1500 * time.Millisecond)
		return clock
	}

	boom := stderrors.New("boom")
	if err := r.Track("generate_houdini_content", func() error { return boom }); err != boom {
		t.Errorf("expected stage error to be returned, got %v", err)
	}
	if got := r.Snapshot()["generate_houdini_content"]; got != 1.5 {
		t.Errorf("expected 1.5s, got %v", got)
	}
}

func TestSave(t *testing.T) {
	r := New()
	r.Set("fetch_jobpackage", 2*time.Second)

	dir := filepath.Join(t.TempDir(), "SHARED", "OUT")
	path, err := r.Save(dir)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]float64
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["fetch_jobpackage"] != 2 {
		t.Errorf("unexpected content %s", raw)
	}

	empty, err := New().Save(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(empty)
	if string(raw) != "{}" {
		t.Errorf("expected empty object, got %s", raw)
	}
}
