// Package directive reads the JSON work directive consumed by the
// in-container processing tool.
package directive

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"aurora/internal/pkg/errors"
)

// Input types understood by the processing tool.
const (
	InputTypeFile  = "input_file"
	InputTypeValue = "value"
)

// Input sets one node parameter before execution.
type Input struct {
	Node     string          `json:"node"`
	Parm     string          `json:"parm"`
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
	Required bool            `json:"required,omitempty"`
}

// Directive is one unit of work: load a scene, set inputs, press buttons.
type Directive struct {
	Enabled      bool     `json:"enabled"`
	HipFile      string   `json:"hip_file"`
	HipFileDebug string   `json:"hip_file_debug,omitempty"`
	Inputs       []Input  `json:"inputs"`
	Execute      []string `json:"execute"`
}

// Load reads and validates a directive list.
func Load(path string) ([]Directive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "directive.load", "failed to read work directive").
			WithField("path", path)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]Directive, error) {
	var ds []Directive
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "directive.parse", "work directive must be a JSON list")
	}
	if err := Validate(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks the fields the processing tool dereferences. Disabled
// directives are skipped.
func Validate(ds []Directive) error {
	for i, d := range ds {
		if !d.Enabled {
			continue
		}
		at := fmt.Sprintf("directive[%d]", i)
		if strings.TrimSpace(d.HipFile) == "" {
			return errors.ValidationField(at+".hip_file", "enabled directive needs a hip_file")
		}
		for j, in := range d.Inputs {
			field := fmt.Sprintf("%s.inputs[%d]", at, j)
			switch {
			case in.Node == "":
				return errors.ValidationField(field+".node", "input needs a node path")
			case in.Parm == "":
				return errors.ValidationField(field+".parm", "input needs a parm name")
			case in.Type == "":
				return errors.ValidationField(field+".type", "input needs a type")
			}
		}
		for j, e := range d.Execute {
			if strings.TrimSpace(e) == "" {
				return errors.ValidationField(fmt.Sprintf("%s.execute[%d]", at, j), "execute entries must be parameter paths")
			}
		}
	}
	return nil
}

// ContainerPath rewrites a host directive path for use inside the container,
// replacing the $DATA_ROOT placeholder with the data mount.
func ContainerPath(path, dataMount string) string {
	return strings.ReplaceAll(path, "$DATA_ROOT", dataMount)
}

// HostPath expands $DATA_ROOT to the host data directory.
func HostPath(path, dataRoot string) string {
	return strings.ReplaceAll(path, "$DATA_ROOT", strings.TrimRight(dataRoot, "/")+"/")
}
