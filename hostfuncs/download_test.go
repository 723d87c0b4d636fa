package hostfuncs

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releaseHost = "https://releases.example.com"

type fakeHTTP struct {
	bodies map[string][]byte
}

func (f *fakeHTTP) Fetch(_ context.Context, url string, w io.Writer) (int, error) {
	body, ok := f.bodies[url]
	if !ok {
		return 404, nil
	}
	_, err := w.Write(body)
	return 200, err
}

type archiveEntry struct {
	name string
	body string
	dir  bool
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, entries ...archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o755, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr.Typeflag, hdr.Size = tar.TypeDir, 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return gzipBytes(t, buf.Bytes())
}

func zipBytes(t *testing.T, entries ...archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		name := e.name
		if e.dir {
			name += "/"
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		if !e.dir {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func downloadRegistry(t *testing.T, bodies map[string][]byte, opts ...DownloadOption) *HandlerRegistry {
	t.Helper()
	reg, err := NewRegistry(WithBundle(DownloadBundle(&fakeHTTP{bodies: bodies}, opts...)))
	require.NoError(t, err)
	return reg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestDownloadFile(t *testing.T) {
	bodies := map[string][]byte{
		releaseHost + "/tool":        []byte("#!/bin/sh\necho tool\n"),
		releaseHost + "/tool.gz":     gzipBytes(t, []byte("unzipped tool")),
		releaseHost + "/tool.tar.gz": tarGzBytes(t, archiveEntry{name: "bin", dir: true}, archiveEntry{name: "bin/tool", body: "from tar"}, archiveEntry{name: "../escape", body: "contained"}),
		releaseHost + "/tool.zip":    zipBytes(t, archiveEntry{name: "lib", dir: true}, archiveEntry{name: "lib/tool.js", body: "from zip"}, archiveEntry{name: "../../escape", body: "contained"}),
	}

	tests := []struct {
		name  string
		req   wireformat.DownloadFileRequest
		files map[string]string
	}{
		{
			name:  "uncompressed",
			req:   wireformat.DownloadFileRequest{URL: releaseHost + "/tool", Path: "bin/tool", FileType: wireformat.FileTypeUncompressed},
			files: map[string]string{"bin/tool": "#!/bin/sh\necho tool\n"},
		},
		{
			name:  "empty file type is uncompressed",
			req:   wireformat.DownloadFileRequest{URL: releaseHost + "/tool", Path: "tool"},
			files: map[string]string{"tool": "#!/bin/sh\necho tool\n"},
		},
		{
			name:  "gzip",
			req:   wireformat.DownloadFileRequest{URL: releaseHost + "/tool.gz", Path: "tool", FileType: wireformat.FileTypeGzip},
			files: map[string]string{"tool": "unzipped tool"},
		},
		{
			name:  "gzip tar keeps traversal entries inside the destination",
			req:   wireformat.DownloadFileRequest{URL: releaseHost + "/tool.tar.gz", Path: "tool-1.0", FileType: wireformat.FileTypeGzipTar},
			files: map[string]string{"tool-1.0/bin/tool": "from tar", "tool-1.0/escape": "contained"},
		},
		{
			name:  "zip keeps traversal entries inside the destination",
			req:   wireformat.DownloadFileRequest{URL: releaseHost + "/tool.zip", Path: "pkg", FileType: wireformat.FileTypeZip},
			files: map[string]string{"pkg/lib/tool.js": "from zip", "pkg/escape": "contained"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := downloadRegistry(t, bodies)
			inst := newInstance(t, entities.DownloadFile("releases.example.com", "**"))

			resp, err := reg.Invoke(instanceContext(inst), FuncDownloadFile, mustJSON(t, tt.req))
			require.NoError(t, err)
			decodeOk(t, resp, nil)

			for name, want := range tt.files {
				assert.Equal(t, want, readFile(t, filepath.Join(inst.WorkDir(), filepath.FromSlash(name))))
			}
			assert.NoFileExists(t, filepath.Join(inst.WorkDir(), filepath.FromSlash(tt.req.Path)+".download"))
			assert.NoFileExists(t, filepath.Join(filepath.Dir(inst.WorkDir()), "escape"))
		})
	}
}

func TestDownloadFile_Errors(t *testing.T) {
	bodies := map[string][]byte{
		releaseHost + "/tool":     []byte("plain"),
		releaseHost + "/big":      bytes.Repeat([]byte("x"), 64),
		releaseHost + "/notgzip":  []byte("not gzip"),
		"https://evil.example/rk": []byte("rootkit"),
	}

	tests := []struct {
		name     string
		req      wireformat.DownloadFileRequest
		opts     []DownloadOption
		wantCode string
	}{
		{name: "undeclared host is denied", req: wireformat.DownloadFileRequest{URL: "https://evil.example/rk", Path: "rk"}, wantCode: "CAPABILITY_DENIED"},
		{name: "invalid url", req: wireformat.DownloadFileRequest{URL: "not a url", Path: "x"}, wantCode: "VALIDATION_ERROR"},
		{name: "path escapes work dir", req: wireformat.DownloadFileRequest{URL: releaseHost + "/tool", Path: "../outside"}, wantCode: "VALIDATION_ERROR"},
		{name: "absolute path", req: wireformat.DownloadFileRequest{URL: releaseHost + "/tool", Path: "/etc/tool"}, wantCode: "VALIDATION_ERROR"},
		{name: "missing path", req: wireformat.DownloadFileRequest{URL: releaseHost + "/tool"}, wantCode: "VALIDATION_ERROR"},
		{name: "unsupported file type", req: wireformat.DownloadFileRequest{URL: releaseHost + "/tool", Path: "x", FileType: "rar"}, wantCode: "VALIDATION_ERROR"},
		{name: "http status", req: wireformat.DownloadFileRequest{URL: releaseHost + "/missing", Path: "x"}, wantCode: "http_404"},
		{name: "corrupt gzip", req: wireformat.DownloadFileRequest{URL: releaseHost + "/notgzip", Path: "x", FileType: wireformat.FileTypeGzip}, wantCode: "http_200"},
		{name: "extract limit", req: wireformat.DownloadFileRequest{URL: releaseHost + "/big", Path: "x"}, opts: []DownloadOption{WithMaxExtractedSize(16)}, wantCode: "http_200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := downloadRegistry(t, bodies, tt.opts...)
			inst := newInstance(t, entities.DownloadFile("releases.example.com", "**"))

			resp, err := reg.Invoke(instanceContext(inst), FuncDownloadFile, mustJSON(t, tt.req))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, decodeErr(t, resp).Code)
		})
	}
}

func TestMakeFileExecutable(t *testing.T) {
	reg := downloadRegistry(t, nil)
	inst := newInstance(t)
	require.NoError(t, os.MkdirAll(filepath.Join(inst.WorkDir(), "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inst.WorkDir(), "bin", "tool"), []byte("x"), 0o644))

	resp, err := reg.Invoke(instanceContext(inst), FuncMakeFileExecutable, mustJSON(t, wireformat.PathRequest{Path: "bin/tool"}))
	require.NoError(t, err)
	decodeOk(t, resp, nil)

	info, err := os.Stat(filepath.Join(inst.WorkDir(), "bin", "tool"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	resp, err = reg.Invoke(instanceContext(inst), FuncMakeFileExecutable, mustJSON(t, wireformat.PathRequest{Path: "../../bin/sh"}))
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_ERROR", decodeErr(t, resp).Code)
}

func TestArchiveEntryPath(t *testing.T) {
	tests := []struct {
		entry string
		want  string
	}{
		{entry: "bin/tool", want: filepath.Join("dest", "bin", "tool")},
		{entry: "./bin/../lib/x", want: filepath.Join("dest", "lib", "x")},
		{entry: "../../etc/passwd", want: filepath.Join("dest", "etc", "passwd")},
		{entry: "/abs/path", want: filepath.Join("dest", "abs", "path")},
		{entry: "", want: "dest"},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, ok := archiveEntryPath("dest", tt.entry)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
