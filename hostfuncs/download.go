package hostfuncs

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

// DefaultMaxExtractedSize bounds the bytes written while unpacking one archive (2GB).
const DefaultMaxExtractedSize = 2 * 1024 * 1024 * 1024

// ErrExtractLimit is returned when an archive expands past the configured limit.
var ErrExtractLimit = errors.New("archive exceeds extracted size limit")

// DownloadOption configures the download bundle.
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	maxExtractedSize int64
}

func defaultDownloadConfig() downloadConfig {
	return downloadConfig{maxExtractedSize: DefaultMaxExtractedSize}
}

// WithMaxExtractedSize bounds the bytes written while unpacking one archive.
func WithMaxExtractedSize(n int64) DownloadOption {
	return func(c *downloadConfig) {
		if n > 0 {
			c.maxExtractedSize = n
		}
	}
}

// DownloadBundle returns the host functions that write into the extension
// work directory: download_file (gated by download_file) and make_file_executable.
func DownloadBundle(client ports.HTTPClient, opts ...DownloadOption) HostFuncBundle {
	cfg := defaultDownloadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if client == nil {
		client = NewHTTPFetcher()
	}
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncDownloadFile:       NewJSONHandler(downloadFile(cfg, client)),
			FuncMakeFileExecutable: NewJSONHandler(makeFileExecutable),
		},
	}
}

func downloadFile(cfg downloadConfig, client ports.HTTPClient) HostFunc[wireformat.DownloadFileRequest, any] {
	return func(ctx context.Context, req wireformat.DownloadFileRequest) (any, error) {
		inst, err := requireInstance(ctx)
		if err != nil {
			return nil, err
		}

		op, err := entities.NewDownloadFileRequest(req.URL)
		if err != nil {
			return nil, NewValidationError(err.Error()).Err()
		}
		if err := inst.Granter().Check(op); err != nil {
			return nil, err
		}

		dest, err := localPath(req.Path)
		if err != nil {
			return nil, err
		}

		root, err := os.OpenRoot(inst.WorkDir())
		if err != nil {
			return nil, fmt.Errorf("open work dir: %w", err)
		}
		defer func() { _ = root.Close() }()

		if err := root.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}

		// The body lands in a scratch file first so archives can be read back
		// and a failed download never leaves a partial destination.
		tmpName := dest + ".download"
		tmp, err := root.Create(tmpName)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = tmp.Close()
			_ = root.Remove(tmpName)
		}()

		status, err := client.Fetch(ctx, req.URL, tmp)
		if err != nil {
			return nil, &domainerrors.DownloadError{URL: req.URL, StatusCode: status, Err: err}
		}
		if status < 200 || status > 299 {
			return nil, &domainerrors.DownloadError{URL: req.URL, StatusCode: status, Err: errors.New("unexpected status")}
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		switch req.FileType {
		case "", wireformat.FileTypeUncompressed:
			err = writeFile(root, dest, tmp, cfg.maxExtractedSize, 0o644)
		case wireformat.FileTypeGzip:
			err = gunzipFile(root, dest, tmp, cfg.maxExtractedSize)
		case wireformat.FileTypeGzipTar:
			err = untarGzip(ctx, root, dest, tmp, cfg.maxExtractedSize)
		case wireformat.FileTypeZip:
			err = unzipFile(ctx, root, dest, tmp, cfg.maxExtractedSize)
		default:
			return nil, NewValidationError("unsupported file_type: " + req.FileType).Err()
		}
		if err != nil {
			return nil, &domainerrors.DownloadError{URL: req.URL, StatusCode: status, Err: err}
		}

		slog.DebugContext(ctx, "hostfuncs: downloaded file",
			"extension", inst.ExtensionID(),
			"url", req.URL,
			"path", dest,
			"file_type", req.FileType)
		return nil, nil
	}
}

func makeFileExecutable(ctx context.Context, req wireformat.PathRequest) (any, error) {
	inst, err := requireInstance(ctx)
	if err != nil {
		return nil, err
	}
	p, err := localPath(req.Path)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(inst.WorkDir())
	if err != nil {
		return nil, fmt.Errorf("open work dir: %w", err)
	}
	defer func() { _ = root.Close() }()

	if err := root.Chmod(p, 0o755); err != nil {
		return nil, err
	}
	return nil, nil
}

// localPath rejects paths that would leave the work directory.
func localPath(p string) (string, error) {
	if p == "" {
		return "", NewValidationError("path is required").Err()
	}
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if !filepath.IsLocal(cleaned) {
		return "", NewValidationError(fmt.Sprintf("path %q escapes the extension work directory", p)).Err()
	}
	return cleaned, nil
}

func writeFile(root *os.Root, name string, r io.Reader, limit int64, mode fs.FileMode) error {
	f, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n > limit {
		return ErrExtractLimit
	}
	return nil
}

func gunzipFile(root *os.Root, dest string, r io.Reader, limit int64) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()
	return writeFile(root, dest, gz, limit, 0o644)
}

func untarGzip(ctx context.Context, root *os.Root, dest string, r io.Reader, limit int64) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	if err := root.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	remaining := limit
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name, ok := archiveEntryPath(dest, hdr.Name)
		if !ok {
			slog.WarnContext(ctx, "hostfuncs: skipping archive entry outside destination", "entry", hdr.Name)
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if hdr.Size > remaining {
				return ErrExtractLimit
			}
			if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return err
			}
			if err := writeFile(root, name, tr, remaining, fs.FileMode(hdr.Mode)&0o755|0o600); err != nil {
				return err
			}
			remaining -= hdr.Size
		default:
			slog.DebugContext(ctx, "hostfuncs: skipping unsupported archive entry", "entry", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func unzipFile(ctx context.Context, root *os.Root, dest string, f *os.File, limit int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return err
	}

	if err := root.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	remaining := limit
	for _, entry := range zr.File {
		name, ok := archiveEntryPath(dest, entry.Name)
		if !ok {
			slog.WarnContext(ctx, "hostfuncs: skipping archive entry outside destination", "entry", entry.Name)
			continue
		}

		mode := entry.Mode()
		switch {
		case mode.IsDir():
			if err := root.MkdirAll(name, 0o755); err != nil {
				return err
			}
			continue
		case !mode.IsRegular():
			slog.DebugContext(ctx, "hostfuncs: skipping unsupported archive entry", "entry", entry.Name)
			continue
		}

		if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return err
		}
		err = writeFile(root, name, rc, remaining, mode.Perm()&0o755|0o600)
		_ = rc.Close()
		if err != nil {
			return err
		}
		remaining -= int64(entry.UncompressedSize64) //nolint:gosec // G115: bounded by limit check in writeFile
		if remaining < 0 {
			return ErrExtractLimit
		}
	}
	return nil
}

// archiveEntryPath joins an archive entry name under dest, refusing names
// that are absolute or climb out of it.
func archiveEntryPath(dest, entryName string) (string, bool) {
	cleaned := path.Clean("/" + entryName)[1:]
	if cleaned == "" {
		return dest, true
	}
	local := filepath.FromSlash(cleaned)
	if !filepath.IsLocal(local) {
		return "", false
	}
	return filepath.Join(dest, local), true
}
