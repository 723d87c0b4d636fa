// Package loader reads extension directories from disk: the manifest, its
// validation, and the compiled module next to it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/reglet-dev/exthost/application/validation"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/infrastructure/parser"
	"golang.org/x/sync/errgroup"
)

// WasmFileName is the compiled module inside an extension directory.
const WasmFileName = "extension.wasm"

// ManifestFileNames are tried in order inside an extension directory.
var ManifestFileNames = []string{"extension.toml", "extension.json", "extension.yaml", "extension.yml"}

// ErrNoManifest is returned for a directory without a manifest file.
var ErrNoManifest = errors.New("no extension manifest found")

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	parser      ports.ManifestParser
	validator   ports.ManifestValidator
	concurrency int
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser:      parser.NewManifestParser(),
		concurrency: 4,
	}
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithValidator sets the manifest validator.
func WithValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithConcurrency bounds how many directories LoadAll reads at once.
func WithConcurrency(n int) LoaderOption {
	return func(c *loaderConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Loader orchestrates the manifest loading pipeline.
type Loader struct {
	config loaderConfig
}

// NewLoader creates a new Loader. Without WithValidator it validates with a
// validation.ManifestValidator.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.validator == nil {
		v, err := validation.NewManifestValidator()
		if err != nil {
			return nil, err
		}
		cfg.validator = v
	}
	return &Loader{config: cfg}, nil
}

// Extension is an extension read from disk and ready for WasmHost.LoadExtension.
type Extension struct {
	Dir      string
	Manifest *entities.ExtensionManifest
	Wasm     []byte
}

// LoadManifest parses and validates a manifest.
func (l *Loader) LoadManifest(raw []byte, format ports.ManifestFormat) (*entities.ExtensionManifest, error) {
	manifest, err := l.config.parser.Parse(raw, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	res, err := l.config.validator.Validate(manifest)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !res.Valid {
		return nil, &ManifestError{Extension: manifest.ID, Errors: res.Errors}
	}
	return manifest, nil
}

// LoadManifestFile reads a manifest, picking the format from its extension.
func (l *Loader) LoadManifestFile(path string) (*entities.ExtensionManifest, error) {
	format, err := parser.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := l.LoadManifest(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadDir reads one extension directory.
func (l *Loader) LoadDir(dir string) (*Extension, error) {
	path, err := FindManifest(dir)
	if err != nil {
		return nil, err
	}
	manifest, err := l.LoadManifestFile(path)
	if err != nil {
		return nil, err
	}

	wasm, err := os.ReadFile(filepath.Join(dir, WasmFileName))
	if err != nil {
		return nil, fmt.Errorf("extension %s: cannot read %s: %w", manifest.ID, WasmFileName, err)
	}
	return &Extension{Dir: dir, Manifest: manifest, Wasm: wasm}, nil
}

// LoadAll reads every extension directory directly under root, in parallel.
// Results are sorted by extension ID. The first failure cancels the rest.
func (l *Loader) LoadAll(ctx context.Context, root string) ([]*Extension, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read extensions directory %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}

	out := make([]*Extension, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.concurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ext, err := l.LoadDir(dir)
			if err != nil {
				return err
			}
			out[i] = ext
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(out))
	for _, ext := range out {
		if prev, dup := seen[ext.Manifest.ID]; dup {
			return nil, fmt.Errorf("extension %s is defined in both %s and %s", ext.Manifest.ID, prev, ext.Dir)
		}
		seen[ext.Manifest.ID] = ext.Dir
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out, nil
}

// FindManifest returns the first manifest file present in dir.
func FindManifest(dir string) (string, error) {
	for _, name := range ManifestFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("cannot stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

// ManifestError lists every validation problem of one manifest.
type ManifestError struct {
	Extension string
	Errors    []entities.ValidationError
}

func (e *ManifestError) Error() string {
	var b strings.Builder
	b.WriteString("manifest validation failed")
	if e.Extension != "" {
		b.WriteString(" for " + e.Extension)
	}
	b.WriteString(":")
	for _, ve := range e.Errors {
		_, _ = fmt.Fprintf(&b, "\n- %s: %s", ve.Field, ve.Message)
	}
	return b.String()
}
