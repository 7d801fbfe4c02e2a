package dispatcher

import (
	"aurora/internal/config"
	"aurora/internal/pkg/errors"
)

const (
	DefaultLaunchTemplateVersion = "$Latest"
	DefaultInstanceName          = "Aurora Processing Instance"
)

// Config is validated on every invocation so a missing value surfaces as a
// configuration outcome instead of a crash.
type Config struct {
	LaunchTemplateName    string
	LaunchTemplateVersion string
	// SubnetID and SecurityGroupID are required for parity with the deployed
	// stack; the launch template carries the values used at launch.
	SubnetID        string
	SecurityGroupID string
	InstanceName    string
}

func ConfigFromEnv() Config {
	return Config{
		LaunchTemplateName:    config.Env("LAUNCH_TEMPLATE_NAME", ""),
		LaunchTemplateVersion: config.Env("LAUNCH_TEMPLATE_VERSION", DefaultLaunchTemplateVersion),
		SubnetID:              config.Env("SUBNET_ID", ""),
		SecurityGroupID:       config.Env("SECURITY_GROUP_ID", ""),
		InstanceName:          config.Env("INSTANCE_NAME", DefaultInstanceName),
	}
}

// Validate reports the first missing required variable.
func (c Config) Validate() error {
	for _, req := range []struct{ key, val string }{
		{"LAUNCH_TEMPLATE_NAME", c.LaunchTemplateName},
		{"SUBNET_ID", c.SubnetID},
		{"SECURITY_GROUP_ID", c.SecurityGroupID},
	} {
		if req.val == "" {
			return errors.Configuration(req.key)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.LaunchTemplateVersion == "" {
		c.LaunchTemplateVersion = DefaultLaunchTemplateVersion
	}
	if c.InstanceName == "" {
		c.InstanceName = DefaultInstanceName
	}
	return c
}
