package artifact

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"aurora/internal/pkg/errors"
)

// BuildDirName is the fixed name given to the single extracted entry.
const BuildDirName = "build"

// ExtractError reports an archive whose layout is not exactly one top-level entry.
func ExtractError(archive, msg string) *errors.Error {
	return errors.Integrity(msg).WithField("archive", archive)
}

// Extract unpacks the gzip tar archive into targetDir. The archive must hold
// exactly one top-level entry; it is renamed to targetDir/build and the
// archive is removed. On any failure the archive is left in place.
func Extract(archive, targetDir string) (string, error) {
	const op = "artifact.extract"

	buildPath := filepath.Join(targetDir, BuildDirName)
	if _, err := os.Lstat(buildPath); err == nil {
		return "", errors.Newf(errors.CodeIntegrity, "%s already exists", buildPath).WithField("archive", archive)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", errors.Wrap(err, op, "failed to create target directory")
	}
	staging, err := os.MkdirTemp(targetDir, ".extract-")
	if err != nil {
		return "", errors.Wrap(err, op, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	tops, err := untar(archive, staging)
	if err != nil {
		return "", err
	}

	switch len(tops) {
	case 0:
		return "", ExtractError(archive, "archive has no top-level entry")
	case 1:
	default:
		return "", ExtractError(archive, "archive has more than one top-level entry").
			WithField("entries", len(tops))
	}

	var top string
	for name := range tops {
		top = name
	}

	if err := os.Rename(filepath.Join(staging, top), buildPath); err != nil {
		return "", errors.Wrap(err, op, "failed to rename extracted entry")
	}
	if err := os.Remove(archive); err != nil {
		return buildPath, errors.Wrap(err, op, "failed to remove archive")
	}
	return buildPath, nil
}

// untar writes every entry under dir and returns the set of top-level names.
func untar(archive, dir string) (map[string]struct{}, error) {
	const op = "artifact.extract"

	f, err := os.Open(archive)
	if err != nil {
		return nil, errors.Wrap(err, op, "failed to open archive").WithField("archive", archive)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeIntegrity, op, "archive is not gzip compressed")
	}
	defer gz.Close()

	tops := make(map[string]struct{})
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeIntegrity, op, "corrupt tar stream")
		}

		name := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(hdr.Name, "./")))
		if name == "." || name == "" {
			continue
		}
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return nil, ExtractError(archive, "archive entry escapes target directory").WithField("entry", hdr.Name)
		}
		tops[strings.SplitN(name, string(filepath.Separator), 2)[0]] = struct{}{}

		dst := filepath.Join(dir, name)
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, mode|0o700); err != nil {
				return nil, errors.Wrap(err, op, "failed to create directory")
			}
		case tar.TypeReg:
			if err := writeEntry(dst, tr, mode); err != nil {
				return nil, err
			}
		case tar.TypeSymlink:
			target := hdr.Linkname
			resolved := target
			if !filepath.IsAbs(target) {
				resolved = filepath.Join(filepath.Dir(dst), target)
			}
			if rel, err := filepath.Rel(dir, resolved); err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(target) {
				return nil, ExtractError(archive, "symlink escapes target directory").WithField("entry", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return nil, errors.Wrap(err, op, "failed to create directory")
			}
			if err := os.Symlink(target, dst); err != nil {
				return nil, errors.Wrap(err, op, "failed to create symlink")
			}
		default:
			// hard links, devices and fifos are not part of installer archives
		}
	}
	return tops, nil
}

func writeEntry(dst string, r io.Reader, mode os.FileMode) error {
	const op = "artifact.extract"

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, op, "failed to create directory")
	}
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(err, op, "failed to create file")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.WrapWithCode(err, errors.CodeIntegrity, op, "failed to extract file")
	}
	return out.Close()
}
