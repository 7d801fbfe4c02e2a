package container

import (
	"context"
	"os/exec"
	"strings"

	"aurora/internal/pkg/logger"
)

// Cleaner stops and removes any container left behind under a name.
// Failures are logged, never returned.
type Cleaner interface {
	Cleanup(ctx context.Context, name string)
}

type DockerCleaner struct {
	Binary string
	Log    *logger.Logger
}

func (c DockerCleaner) Cleanup(ctx context.Context, name string) {
	log := c.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("container").WithFields(map[string]any{"container": name})
	bin := c.Binary
	if bin == "" {
		bin = DockerBinary
	}

	log.Info("ensuring container is terminated")

	out, err := exec.CommandContext(ctx, bin, "ps", "-q", "--filter", "name=^/?"+name+"$").Output()
	if err != nil {
		log.Warn("failed to list running containers", "error", err.Error())
		return
	}

	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		log.Info("no running container found")
		return
	}

	for _, id := range ids {
		log.Info("stopping and removing container", "container_id", id)
		if err := exec.CommandContext(ctx, bin, "stop", id).Run(); err != nil {
			log.Warn("failed to stop container", "container_id", id, "error", err.Error())
		}
		if err := exec.CommandContext(ctx, bin, "rm", "-f", id).Run(); err != nil {
			log.Warn("failed to remove container", "container_id", id, "error", err.Error())
		}
	}
}
