package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"aurora/internal/pkg/errors"
)

// Provisioning output keys consumed by the submitter.
const (
	OutputRequestQueueURL  = "request_queue_url"
	OutputResponseQueueURL = "response_queue_url"
	OutputAWSRegion        = "aws_region"
)

// Outputs is the flat name → value document written by infrastructure provisioning.
type Outputs map[string]string

// LoadOutputs reads the provisioning outputs JSON. Non-string values are kept
// in their JSON text form.
func LoadOutputs(path string) (Outputs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "config.outputs", "failed to read provisioning outputs").
			WithField("path", path)
	}
	return ParseOutputs(raw)
}

func ParseOutputs(raw []byte) (Outputs, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "config.outputs", "provisioning outputs must be a flat JSON object")
	}

	out := make(Outputs, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		case json.Number:
			out[k] = t.String()
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out, nil
}

// Require returns a configuration error naming the first missing key.
func (o Outputs) Require(keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(o[k]) == "" {
			return errors.Configuration(fmt.Sprintf("provisioning output %q", k)).WithField("key", k)
		}
	}
	return nil
}
