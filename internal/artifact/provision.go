package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"aurora/internal/pkg/errors"
)

// DefaultInstallerPath is where installer archives land when no path is given.
const DefaultInstallerPath = "/houdini_installer/"

// Download describes one artifact to provision.
type Download struct {
	URL      string
	Filename string
	Hash     string
	// TargetDir receives the archive and the extracted build directory.
	TargetDir string
}

func (d Download) Validate() error {
	switch {
	case strings.TrimSpace(d.URL) == "":
		return errors.ValidationField("download_url", "download url is required")
	case strings.TrimSpace(d.Filename) == "":
		return errors.ValidationField("filename", "filename is required")
	case strings.ContainsRune(d.Filename, filepath.Separator):
		return errors.ValidationField("filename", "filename must not contain a path separator")
	case strings.TrimSpace(d.Hash) == "":
		return errors.ValidationField("hash", "hash is required")
	}
	return nil
}

// Provision fetches, verifies and extracts d. A checksum mismatch removes the
// downloaded file and returns an integrity error. It returns the build path.
func (f *Fetcher) Provision(ctx context.Context, d Download) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	if d.TargetDir == "" {
		d.TargetDir = DefaultInstallerPath
	}
	if err := os.MkdirAll(d.TargetDir, 0o755); err != nil {
		return "", errors.Wrap(err, "artifact.provision", "failed to create installer directory")
	}

	archive := filepath.Join(d.TargetDir, d.Filename)
	if _, err := f.Fetch(ctx, d.URL, archive); err != nil {
		return "", err
	}

	f.log.Info("verifying checksum", "path", archive)
	ok, err := Verify(archive, d.Hash)
	if err != nil {
		return "", err
	}
	if !ok {
		_ = os.Remove(archive)
		return "", IntegrityError(archive, d.Hash)
	}
	f.log.Info("checksum verified", "path", archive)

	build, err := Extract(archive, d.TargetDir)
	if err != nil {
		return "", err
	}
	f.log.Info("extraction complete", "build_dir", build)
	return build, nil
}
