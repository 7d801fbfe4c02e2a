package directive

import (
	"os"
	"path/filepath"
	"testing"

	"aurora/internal/pkg/errors"
)

const sample = `[
  {
    "enabled": true,
    "hip_file": "$DATA_ROOT/IN/scene.hip",
    "inputs": [
      {"node": "/obj/geo1/file1", "parm": "file", "type": "input_file", "value": "$DATA_ROOT/IN/mesh.bgeo", "required": true},
      {"node": "/obj/geo1/xform", "parm": "scale", "type": "value", "value": 2.5}
    ],
    "execute": ["/out/rop_geometry1/execute"]
  },
  {"enabled": false}
]`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houdini_directive.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds) != 2 || !ds[0].Enabled || ds[1].Enabled {
		t.Fatalf("unexpected directives %+v", ds)
	}
	if ds[0].Inputs[1].Type != InputTypeValue || string(ds[0].Inputs[1].Value) != "2.5" {
		t.Errorf("unexpected second input %+v", ds[0].Inputs[1])
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); !errors.IsValidation(err) {
		t.Errorf("expected validation error for missing file, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not a list", raw: `{"enabled": true}`},
		{name: "missing hip file", raw: `[{"enabled": true, "inputs": [], "execute": []}]`},
		{name: "input without node", raw: `[{"enabled": true, "hip_file": "a.hip", "inputs": [{"parm": "file", "type": "value"}]}]`},
		{name: "input without type", raw: `[{"enabled": true, "hip_file": "a.hip", "inputs": [{"node": "/obj", "parm": "file"}]}]`},
		{name: "blank execute", raw: `[{"enabled": true, "hip_file": "a.hip", "execute": [" "]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := Parse([]byte(`[{"enabled": false}]`)); err != nil {
		t.Errorf("disabled directives should not be validated: %v", err)
	}
}

func TestPaths(t *testing.T) {
	if got := ContainerPath("$DATA_ROOT/IN/d.json", "/mnt/data/"); got != "/mnt/data//IN/d.json" {
		t.Errorf("unexpected container path %s", got)
	}
	if got := HostPath("$DATA_ROOTIN/d.json", "/opt/aurora/SHARED"); got != "/opt/aurora/SHARED/IN/d.json" {
		t.Errorf("unexpected host path %s", got)
	}
}
