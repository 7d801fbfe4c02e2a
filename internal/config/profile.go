package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aurora/internal/pkg/errors"
)

// DefaultTimeout bounds one container run when the profile does not set one.
const DefaultTimeout = 20000 * time.Second

// Profile describes how the runner invokes the content-processing container.
type Profile struct {
	ServiceImage    string            `yaml:"service_image"`
	ContainerName   string            `yaml:"container_name"`
	Script          string            `yaml:"script"`
	Entrypoint      string            `yaml:"entrypoint"`
	Timeout         time.Duration     `yaml:"timeout"`
	LogDir          string            `yaml:"log_dir"`
	SecretName      string            `yaml:"secret_name"`
	CredentialsFile string            `yaml:"credentials_file"`
	Env             map[string]string `yaml:"env"`
	ExtraDockerArgs []string          `yaml:"extra_docker_args"`
}

// DefaultProfile returns the profile used by the stock Houdini image.
func DefaultProfile(toolingRoot string) Profile {
	return Profile{
		ServiceImage:    "houdini_aws:latest",
		Script:          "/mnt/tooling/runtime/runner.sh",
		Entrypoint:      "/bin/bash",
		Timeout:         DefaultTimeout,
		LogDir:          filepath.Join(toolingRoot, "logs"),
		SecretName:      "SideFXOAuthCredentials",
		CredentialsFile: "houdini_credentials.json",
	}
}

// LoadProfile reads a YAML profile and fills unset fields from DefaultProfile.
// Environment references like $AURORA_TOOLING_ROOT are expanded in paths.
func LoadProfile(path, toolingRoot string) (Profile, error) {
	p := DefaultProfile(toolingRoot)
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.WrapWithCode(err, errors.CodeConfiguration, "config.profile", "failed to read runtime profile")
	}

	var loaded Profile
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Profile{}, errors.WrapWithCode(err, errors.CodeConfiguration, "config.profile", "invalid runtime profile")
	}

	if loaded.ServiceImage != "" {
		p.ServiceImage = loaded.ServiceImage
	}
	if loaded.ContainerName != "" {
		p.ContainerName = loaded.ContainerName
	}
	if loaded.Script != "" {
		p.Script = loaded.Script
	}
	if loaded.Entrypoint != "" {
		p.Entrypoint = loaded.Entrypoint
	}
	if loaded.Timeout > 0 {
		p.Timeout = loaded.Timeout
	}
	if loaded.LogDir != "" {
		p.LogDir = os.ExpandEnv(loaded.LogDir)
	}
	if loaded.SecretName != "" {
		p.SecretName = loaded.SecretName
	}
	if loaded.CredentialsFile != "" {
		p.CredentialsFile = loaded.CredentialsFile
	}
	p.Env = loaded.Env
	p.ExtraDockerArgs = loaded.ExtraDockerArgs

	return p, nil
}
