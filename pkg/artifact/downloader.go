// pkg/artifact/downloader.go

package artifact

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ChunkSize is the copy buffer size; the artifact is never held in memory.
const ChunkSize = 32 << 10

// ExecutableMode is applied only after a complete, synced write.
const ExecutableMode os.FileMode = 0755

// File is the subset of *os.File the downloader writes through.
type File interface {
	io.WriteCloser
	Sync() error
	Name() string
}

// Downloader streams an artifact to its destination.
type Downloader struct {
	Client *http.Client
	// CreateTemp opens the staging file; defaults to os.CreateTemp.
	CreateTemp func(dir, pattern string) (File, error)
}

func (d *Downloader) createTemp(dir, pattern string) (File, error) {
	if d.CreateTemp != nil {
		return d.CreateTemp(dir, pattern)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Download streams ref.URL into a staging file next to ref.Dest, then marks it
// executable and renames it over ref.Dest. Any failure removes the staging
// file, so ref.Dest is either absent, the previous artifact, or complete.
func (d *Downloader) Download(rc *vm_io.RuntimeContext, ref Reference) (err error) {
	log := otelzap.Ctx(rc.Ctx)
	ctx, span := telemetry.Start(rc.Ctx, "artifact.Download",
		attribute.String("url", ref.URL),
		attribute.String("dest", ref.Dest))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	log.Info("Downloading artifact", zap.String("url", ref.URL), zap.String("dest", ref.Dest))

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return vm_err.NewInternalError("build request for "+ref.URL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return vm_err.NewNetworkError("download of "+ref.URL+" to "+ref.Dest+" failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return vm_err.NewNetworkError("download of "+ref.URL+" to "+ref.Dest+" failed",
			cerr.Newf("unexpected status %s", resp.Status))
	}

	tmp, err := d.createTemp(filepath.Dir(ref.Dest), "."+filepath.Base(ref.Dest)+".part-*")
	if err != nil {
		return vm_err.NewWriteError(ref.Dest, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := copyChunks(tmp, resp.Body, ref.Dest)
	if err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return vm_err.NewWriteError(ref.Dest, err)
	}
	if err := tmp.Close(); err != nil {
		return vm_err.NewWriteError(ref.Dest, err)
	}
	if err := os.Chmod(tmpName, ExecutableMode); err != nil {
		return vm_err.NewWriteError(ref.Dest, err)
	}
	if err := os.Rename(tmpName, ref.Dest); err != nil {
		return vm_err.NewWriteError(ref.Dest, err)
	}
	committed = true

	log.Info("Artifact downloaded", zap.String("dest", ref.Dest), zap.Int64("bytes", written))
	return nil
}

// copyChunks separates read failures (network) from write failures (disk).
func copyChunks(dst io.Writer, src io.Reader, dest string) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr == nil && m < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, vm_err.NewWriteError(dest, werr)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, vm_err.NewNetworkError("download to "+dest+" interrupted", rerr)
		}
	}
}
