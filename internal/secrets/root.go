// Package secrets brackets per-job secret material on the runtime host.
package secrets

import (
	"fmt"
	"os"

	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

// WithCredentialsRoot creates path (mode 0700, parents included), runs body
// with it and removes the whole tree afterwards. Removal happens when body
// returns, fails or panics, and also when creation only partly succeeded.
// A removal failure is logged and never replaces body's error.
func WithCredentialsRoot(log *logger.Logger, path string, body func(root string) error) (err error) {
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("secrets")

	if path == "" || path == "/" {
		return errors.ValidationField("credentials_root", fmt.Sprintf("refusing to use %q as credentials root", path))
	}

	defer func() {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			log.Warn("failed to remove credentials root", "path", path, "error", rmErr.Error())
		}
	}()

	if mkErr := os.MkdirAll(path, 0o700); mkErr != nil {
		return errors.Wrap(mkErr, "secrets.root", "failed to create credentials root").WithField("path", path)
	}

	return body(path)
}
