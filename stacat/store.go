package stacat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidPath indicates a path that would escape the storage root.
var ErrInvalidPath = errors.New("invalid path: escapes storage root")

// localKey validates a store key. Keys are slash-separated, relative, and
// stay below the store root once cleaned.
func localKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(filepath.ToSlash(key), "/"))
	if key == "" || cleaned == "." || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore serves keys as files below root. Below any root other than "/"
// every access goes through an os.Root, so symlinks cannot lead outside it.
type fsStore struct {
	root string
}

// NewFS creates a Store over the files below dir, which must exist.
// Catalog documents and assets are read in place; Put creates missing
// parent directories.
func NewFS(dir string) (Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("stacat: %s is not a directory: %w", dir, os.ErrNotExist)
	}
	return &fsStore{root: dir}, nil
}

// dirOps is the subset of *os.Root the filesystem store uses.
type dirOps interface {
	MkdirAll(name string, perm fs.FileMode) error
	OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error)
	Open(name string) (*os.File, error)
	Close() error
}

// hostDir serves absolute file hrefs. An os.Root at "/" would refuse the
// absolute symlinks common on host filesystems.
type hostDir struct{}

func (hostDir) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(hostPath(name), perm)
}

func (hostDir) OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	return os.OpenFile(hostPath(name), flag, perm)
}

func (hostDir) Open(name string) (*os.File, error) { return os.Open(hostPath(name)) }

func (hostDir) Close() error { return nil }

func hostPath(name string) string { return string(filepath.Separator) + name }

func (f *fsStore) open(key string) (dirOps, string, error) {
	name, err := localKey(key)
	if err != nil {
		return nil, "", err
	}
	if f.root == string(filepath.Separator) {
		return hostDir{}, filepath.FromSlash(name), nil
	}
	if filepath.IsAbs(key) {
		return nil, "", ErrInvalidPath
	}
	root, err := os.OpenRoot(f.root)
	if err != nil {
		return nil, "", err
	}
	return root, filepath.FromSlash(name), nil
}

func (f *fsStore) Put(_ context.Context, key string, r io.Reader) error {
	root, name, err := f.open(key)
	if err != nil {
		return err
	}
	defer closer(root)()

	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return ErrPathExists
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (f *fsStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	root, name, err := f.open(key)
	if err != nil {
		return nil, err
	}
	defer closer(root)()

	file, err := root.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore keeps documents in a map. Catalogs built in tests and
// programs that assemble STAC documents on the fly are served from it
// under a scheme of their choosing.
type memoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an in-memory Store. It is safe for concurrent use;
// leading slashes are ignored, so "/a.json" and "a.json" name one file.
func NewMemory() Store {
	return &memoryStore{files: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader) error {
	name, err := localKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return ErrPathExists
	}
	m.files[name] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	name, err := localKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// -----------------------------------------------------------------------------
// HTTP Store
// -----------------------------------------------------------------------------

// httpStore implements a read-only Store over HTTP(S). Paths are full URLs.
type httpStore struct {
	client *http.Client
}

// NewHTTP creates a read-only Store that fetches absolute http(s) URLs with
// client. A nil client uses http.DefaultClient.
//
// Put always returns ErrReadOnly.
func NewHTTP(client *http.Client) Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpStore{client: client}
}

func (h *httpStore) Put(context.Context, string, io.Reader) error {
	return ErrReadOnly
}

func (h *httpStore) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stacat: http get %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		closer(resp.Body)()
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		closer(resp.Body)()
		return nil, fmt.Errorf("stacat: http get %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}
