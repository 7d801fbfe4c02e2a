package artifact

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"aurora/internal/pkg/errors"
)

const verifyBlockSize = 4096

// Verify hashes the file at path in fixed 4 KiB blocks and compares it with
// expected. expected is hex and may carry an "md5:", "sha1:" or "sha256:"
// prefix; bare hex is MD5, which is what the vendor publishes.
// A mismatch returns (false, nil). Read failures return an error.
func Verify(path, expected string) (bool, error) {
	const op = "artifact.verify"

	h, want, err := parseExpected(expected)
	if err != nil {
		return false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, op, "failed to open artifact").WithField("path", path)
	}
	defer f.Close()

	buf := make([]byte, verifyBlockSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return false, errors.Wrap(rerr, op, "failed to read artifact").WithField("path", path)
		}
	}

	return hex.EncodeToString(h.Sum(nil)) == want, nil
}

// IntegrityError is returned by callers when Verify reports a mismatch.
func IntegrityError(path, expected string) *errors.Error {
	return errors.Integrity("checksum verification failed").
		WithField("path", path).
		WithField("expected", expected)
}

func parseExpected(expected string) (hash.Hash, string, error) {
	algo, digest, found := strings.Cut(strings.TrimSpace(expected), ":")
	if !found {
		algo, digest = "md5", algo
	}
	digest = strings.ToLower(digest)

	if _, err := hex.DecodeString(digest); err != nil || digest == "" {
		return nil, "", errors.ValidationField("hash", "expected hash must be hex encoded")
	}

	switch strings.ToLower(algo) {
	case "md5":
		return md5.New(), digest, nil
	case "sha1":
		return sha1.New(), digest, nil
	case "sha256":
		return sha256.New(), digest, nil
	default:
		return nil, "", errors.ValidationField("hash", "unsupported hash algorithm: "+algo)
	}
}
