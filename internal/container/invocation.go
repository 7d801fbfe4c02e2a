// Package container runs one containerized workload through the docker CLI,
// streaming its output and tearing it down on every exit path.
package container

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"aurora/internal/pkg/errors"
)

// Mount binds a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

func (m Mount) flag() string {
	mode := "rw"
	if m.ReadOnly {
		mode = "ro"
	}
	return m.HostPath + ":" + m.ContainerPath + ":" + mode
}

type EnvVar struct {
	Key   string
	Value string
}

// Invocation is everything needed for one run. It is built per run and not
// modified afterwards.
type Invocation struct {
	Image      string
	Name       string
	Entrypoint string
	Script     string
	Args       []string
	Mounts     []Mount
	Env        []EnvVar
	ExtraArgs  []string
	Timeout    time.Duration
	// LogPath receives every output line of the run.
	LogPath string
}

// InvalidMountError reports a mount whose host path does not exist.
func InvalidMountError(path string) *errors.Error {
	return errors.Newf(errors.CodeValidation, "mount path does not exist: %s", path).
		WithField("host_path", path)
}

// Validate checks the invocation before anything is spawned.
func (inv Invocation) Validate() error {
	switch {
	case strings.TrimSpace(inv.Image) == "":
		return errors.ValidationField("image", "service image is required")
	case strings.TrimSpace(inv.Name) == "":
		return errors.ValidationField("name", "container name is required")
	case inv.Timeout <= 0:
		return errors.ValidationField("timeout", "timeout must be positive")
	case strings.TrimSpace(inv.LogPath) == "":
		return errors.ValidationField("log_path", "log path is required")
	}

	for _, m := range inv.Mounts {
		if !strings.HasPrefix(m.ContainerPath, "/") {
			return errors.ValidationField("mounts", "container path must be absolute: "+m.ContainerPath)
		}
		if _, err := os.Stat(m.HostPath); err != nil {
			return InvalidMountError(m.HostPath)
		}
	}
	return nil
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// ContainerName derives a docker container name from an image reference,
// e.g. "houdini_aws:latest" becomes "houdini_aws-latest".
func ContainerName(image string) string {
	name := strings.Trim(nameSanitizer.ReplaceAllString(image, "-"), "-._")
	if name == "" {
		return "aurora-job"
	}
	return name
}

// EnvFromMap turns a map into env vars sorted by key.
func EnvFromMap(m map[string]string) []EnvVar {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, EnvVar{Key: k, Value: m[k]})
	}
	return out
}
