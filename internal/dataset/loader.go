package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/flemzord/toolbench/internal/jsonx"
)

// Layout of an environment directory.
const (
	DataDir       = "data"
	ToolsDir      = "tools"
	ManifestFile  = "environment.toml"
	InterfaceDirs = "interface_"
	tableExt      = ".json"
)

// Manifest is the optional environment.toml file of an environment.
type Manifest struct {
	Title       string            `toml:"title"`
	Description string            `toml:"description"`
	Interfaces  map[string]string `toml:"interfaces"`
}

// Interface is one tool subset of an environment.
type Interface struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// Environment describes one directory under the environments root.
type Environment struct {
	Name        string      `json:"name"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Interfaces  []Interface `json:"interfaces"`
	Tables      []string    `json:"tables"`
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Root is the environments root: a plain path or an afs URL
	// (file://, mem://).
	Root string

	// FS is the storage service. Defaults to afs.New().
	FS afs.Service

	// DisableCache forces a storage read on every Load.
	DisableCache bool

	Logger *slog.Logger
}

// Loader reads baseline datasets. Decoded baselines are cached per
// environment; Load always hands out a private deep copy.
type Loader struct {
	root    string
	fs      afs.Service
	noCache bool
	logger  *slog.Logger

	mu        sync.Mutex
	baselines map[string]Dataset
}

// NewLoader creates a Loader for the given root.
func NewLoader(cfg LoaderConfig) *Loader {
	fs := cfg.FS
	if fs == nil {
		fs = afs.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := strings.TrimSuffix(cfg.Root, "/")
	if !strings.Contains(root, "://") {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Loader{
		root:      root,
		fs:        fs,
		noCache:   cfg.DisableCache,
		logger:    logger.With("component", "dataset"),
		baselines: make(map[string]Dataset),
	}
}

// Root returns the environments root location.
func (l *Loader) Root() string { return l.root }

// FS returns the storage service used by the loader.
func (l *Loader) FS() afs.Service { return l.fs }

// EnvironmentURL returns the location of an environment directory.
func (l *Loader) EnvironmentURL(env string) string {
	return url.Join(l.root, env)
}

// ToolsURL returns the tool-source directory of an environment interface.
func (l *Loader) ToolsURL(env, iface string) string {
	return url.Join(l.root, env, ToolsDir, InterfaceDirs+iface)
}

// Load returns a fresh copy of the environment's baseline dataset.
func (l *Loader) Load(ctx context.Context, env string) (Dataset, error) {
	if !l.noCache {
		l.mu.Lock()
		base, ok := l.baselines[env]
		l.mu.Unlock()
		if ok {
			return base.Clone(), nil
		}
	}

	base, err := l.read(ctx, env)
	if err != nil {
		return nil, err
	}

	if !l.noCache {
		l.mu.Lock()
		l.baselines[env] = base
		l.mu.Unlock()
	}
	return base.Clone(), nil
}

// Invalidate drops the cached baseline for env, or every cached baseline
// when env is empty.
func (l *Loader) Invalidate(env string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if env == "" {
		clear(l.baselines)
		return
	}
	delete(l.baselines, env)
}

func (l *Loader) read(ctx context.Context, env string) (Dataset, error) {
	envURL := l.EnvironmentURL(env)
	ok, err := l.fs.Exists(ctx, envURL)
	if err != nil {
		return nil, fmt.Errorf("checking environment %s: %w", env, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEnvironmentNotFound, env)
	}

	ds := Dataset{}
	dataURL := url.Join(envURL, DataDir)
	if ok, _ := l.fs.Exists(ctx, dataURL); !ok {
		l.logger.Debug("environment has no data directory", "environment", env)
		return ds, nil
	}

	objects, err := l.children(ctx, dataURL)
	if err != nil {
		return nil, fmt.Errorf("listing baseline of %s: %w", env, err)
	}
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), tableExt) {
			continue
		}
		table := strings.TrimSuffix(obj.Name(), tableExt)
		data, err := l.fs.DownloadWithURL(ctx, url.Join(dataURL, obj.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading table %s/%s: %w", env, table, err)
		}
		records, err := decodeTable(data)
		if err != nil {
			return nil, fmt.Errorf("%w %s/%s: %w", ErrInvalidTable, env, table, err)
		}
		ds[table] = records
	}
	l.logger.Debug("baseline loaded", "environment", env, "tables", len(ds))
	return ds, nil
}

// decodeTable accepts either an object keyed by record ID or an array of
// records. Array records are keyed by their "id" field, or by position when
// they have none.
func decodeTable(data []byte) (map[string]any, error) {
	v, err := jsonx.Decode(data)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case map[string]any:
		return val, nil
	case []any:
		out := make(map[string]any, len(val))
		for i, item := range val {
			key := strconv.Itoa(i)
			if rec, ok := item.(map[string]any); ok {
				if id, ok := rec["id"]; ok && id != nil {
					key = fmt.Sprint(id)
				}
			}
			out[key] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected object or array, got %T", v)
	}
}

// Environments lists every environment under the root in name order.
func (l *Loader) Environments(ctx context.Context) ([]Environment, error) {
	objects, err := l.children(ctx, l.root)
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}
	var envs []Environment
	for _, obj := range objects {
		if !obj.IsDir() || strings.HasPrefix(obj.Name(), ".") {
			continue
		}
		env, err := l.Environment(ctx, obj.Name())
		if err != nil {
			l.logger.Warn("skipping environment", "environment", obj.Name(), "error", err)
			continue
		}
		envs = append(envs, env)
	}
	slices.SortFunc(envs, func(a, b Environment) int { return strings.Compare(a.Name, b.Name) })
	return envs, nil
}

// Environment describes a single environment.
func (l *Loader) Environment(ctx context.Context, name string) (Environment, error) {
	envURL := l.EnvironmentURL(name)
	if ok, err := l.fs.Exists(ctx, envURL); err != nil || !ok {
		return Environment{}, fmt.Errorf("%w: %s", ErrEnvironmentNotFound, name)
	}

	env := Environment{Name: name, Interfaces: []Interface{}, Tables: []string{}}

	manifest, err := l.manifest(ctx, envURL)
	if err != nil {
		return Environment{}, err
	}
	env.Title = manifest.Title
	env.Description = manifest.Description

	toolsURL := url.Join(envURL, ToolsDir)
	if ok, _ := l.fs.Exists(ctx, toolsURL); ok {
		objects, err := l.children(ctx, toolsURL)
		if err != nil {
			return Environment{}, fmt.Errorf("listing interfaces of %s: %w", name, err)
		}
		for _, obj := range objects {
			if !obj.IsDir() || !strings.HasPrefix(obj.Name(), InterfaceDirs) {
				continue
			}
			iface := strings.TrimPrefix(obj.Name(), InterfaceDirs)
			env.Interfaces = append(env.Interfaces, Interface{Name: iface, Label: manifest.Interfaces[iface]})
		}
		slices.SortFunc(env.Interfaces, func(a, b Interface) int { return strings.Compare(a.Name, b.Name) })
	}

	dataURL := url.Join(envURL, DataDir)
	if ok, _ := l.fs.Exists(ctx, dataURL); ok {
		objects, err := l.children(ctx, dataURL)
		if err != nil {
			return Environment{}, fmt.Errorf("listing tables of %s: %w", name, err)
		}
		for _, obj := range objects {
			if !obj.IsDir() && strings.HasSuffix(obj.Name(), tableExt) {
				env.Tables = append(env.Tables, strings.TrimSuffix(obj.Name(), tableExt))
			}
		}
		slices.Sort(env.Tables)
	}
	return env, nil
}

func (l *Loader) manifest(ctx context.Context, envURL string) (Manifest, error) {
	var m Manifest
	manifestURL := url.Join(envURL, ManifestFile)
	if ok, _ := l.fs.Exists(ctx, manifestURL); !ok {
		return m, nil
	}
	data, err := l.fs.DownloadWithURL(ctx, manifestURL)
	if err != nil {
		return m, fmt.Errorf("reading %s: %w", manifestURL, err)
	}
	if _, err := toml.Decode(string(data), &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", manifestURL, err)
	}
	return m, nil
}

// children lists the direct entries of a directory. afs includes the
// directory itself in a listing; it is filtered out here.
func (l *Loader) children(ctx context.Context, location string) ([]storage.Object, error) {
	objects, err := l.fs.List(ctx, location)
	if err != nil {
		return nil, err
	}
	self := cleanPath(location)
	out := make([]storage.Object, 0, len(objects))
	for _, obj := range objects {
		if obj == nil {
			continue
		}
		if obj.IsDir() && cleanPath(obj.URL()) == self {
			continue
		}
		out = append(out, obj)
	}
	slices.SortFunc(out, func(a, b storage.Object) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func cleanPath(location string) string {
	return path.Clean(url.Path(url.Normalize(location, file.Scheme)))
}
