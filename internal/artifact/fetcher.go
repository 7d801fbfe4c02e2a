// Package artifact downloads, verifies and unpacks large payloads onto the
// runtime host.
package artifact

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

const (
	chunkSize        = 32 * 1024
	progressInterval = 5 * time.Second
	partSuffix       = ".part"
)

// DownloadError reports a non-success HTTP status from the artifact server.
func DownloadError(url string, status int) *errors.Error {
	return errors.Newf(errors.CodeTransport, "download failed with status %d", status).
		WithField("url", url).
		WithField("status", status)
}

type Fetcher struct {
	client *http.Client
	log    *logger.Logger
	// interval between progress log lines
	interval time.Duration
}

func NewFetcher(client *http.Client, log *logger.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Hour}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Fetcher{
		client:   client,
		log:      log.WithComponent("artifact"),
		interval: progressInterval,
	}
}

// Fetch streams url into dest. The body is written to dest+".part" and only
// renamed to dest once the whole body arrived, so dest never holds a partial file.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	const op = "artifact.fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeValidation, op, "invalid download url")
	}

	res, err := f.client.Do(req)
	if err != nil {
		return 0, errors.Transport(err, op, "download request failed").WithField("url", url)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return 0, DownloadError(url, res.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.Wrap(err, op, "failed to create download directory")
	}

	part := dest + partSuffix
	out, err := os.Create(part)
	if err != nil {
		return 0, errors.Wrap(err, op, "failed to create download file")
	}

	f.log.Info("downloading artifact", "path", dest, "size", sizeLabel(res.ContentLength))

	progress := &progressWriter{log: f.log, total: res.ContentLength, interval: f.interval, last: time.Now()}
	n, copyErr := io.CopyBuffer(io.MultiWriter(out, progress), res.Body, make([]byte, chunkSize))
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(part)
		if copyErr != nil {
			return n, errors.Transport(copyErr, op, "download interrupted").WithField("url", url)
		}
		return n, errors.Wrap(closeErr, op, "failed to flush download file")
	}

	if res.ContentLength >= 0 && n != res.ContentLength {
		_ = os.Remove(part)
		return n, errors.Newf(errors.CodeTransport, "short download: got %d of %d bytes", n, res.ContentLength).
			WithField("url", url)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return n, errors.Wrap(err, op, "failed to move download into place")
	}

	f.log.Info("download complete", "path", dest, "bytes", humanize.IBytes(uint64(n)))
	return n, nil
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

// progressWriter logs throughput at most once per interval. When the total is
// unknown only the running byte count is reported.
type progressWriter struct {
	log      *logger.Logger
	total    int64
	done     int64
	interval time.Duration
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if time.Since(p.last) < p.interval {
		return len(b), nil
	}
	p.last = time.Now()

	if p.total > 0 {
		pct := float64(p.done) / float64(p.total) * 100
		p.log.Info("download progress",
			"done", humanize.IBytes(uint64(p.done)),
			"total", humanize.IBytes(uint64(p.total)),
			"percent", humanize.FtoaWithDigits(pct, 1),
		)
	} else {
		p.log.Info("download progress", "done", humanize.IBytes(uint64(p.done)))
	}
	return len(b), nil
}
