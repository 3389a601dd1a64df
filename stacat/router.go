package stacat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Router dispatches hrefs to Stores by URL scheme.
//
// Hrefs without a scheme (and file:// URLs) go to the local filesystem,
// http and https to a read-only HTTP store. Other schemes, such as s3 or
// mem, must be registered with Route. For http and https the store receives
// the full URL; for every other scheme it receives the part after "://".
//
// Reads transparently decompress hrefs ending in .gz or .zst.
type Router struct {
	mu     sync.RWMutex
	stores map[string]Store
}

// NewRouter creates a router with the filesystem and HTTP stores
// registered.
func NewRouter() *Router {
	r := &Router{stores: make(map[string]Store)}
	r.stores["http"] = NewHTTP(nil)
	r.stores["https"] = r.stores["http"]
	return r
}

// Route registers s for hrefs with the given scheme and returns r.
func (r *Router) Route(scheme string, s Store) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[strings.ToLower(scheme)] = s
	return r
}

// Open returns a reader for href, decompressing it when its suffix names a
// compression format.
func (r *Router) Open(ctx context.Context, href string) (io.ReadCloser, error) {
	store, key, err := r.locate(href)
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stacat: open %s: %w", href, err)
	}
	comp := CompressorFor(href)
	if comp.Extension() == "" {
		return rc, nil
	}
	dr, err := comp.Decompress(rc)
	if err != nil {
		closer(rc)()
		return nil, fmt.Errorf("stacat: decompress %s: %w", href, err)
	}
	return &stackedCloser{ReadCloser: dr, under: rc}, nil
}

// Read returns the decompressed contents of href.
func (r *Router) Read(ctx context.Context, href string) ([]byte, error) {
	rc, err := r.Open(ctx, href)
	if err != nil {
		return nil, err
	}
	defer closer(rc)()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("stacat: read %s: %w", href, err)
	}
	return data, nil
}

// Write stores data at href, compressing it when its suffix names a
// compression format.
func (r *Router) Write(ctx context.Context, href string, data []byte) error {
	store, key, err := r.locate(href)
	if err != nil {
		return err
	}
	comp := CompressorFor(href)
	var buf bytes.Buffer
	w, err := comp.Compress(&buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := store.Put(ctx, key, &buf); err != nil {
		return fmt.Errorf("stacat: write %s: %w", href, err)
	}
	return nil
}

func (r *Router) locate(href string) (Store, string, error) {
	scheme, rest := splitScheme(href)
	switch scheme {
	case "", "file":
		abs, err := filepath.Abs(filepath.FromSlash(rest))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
		}
		r.mu.RLock()
		s, ok := r.stores["file"]
		r.mu.RUnlock()
		if !ok {
			s = &fsStore{root: string(filepath.Separator)}
		}
		return s, strings.TrimPrefix(filepath.ToSlash(abs), "/"), nil
	}

	r.mu.RLock()
	s, ok := r.stores[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("stacat: no store registered for scheme %q (href %s)", scheme, href)
	}
	if scheme == "http" || scheme == "https" {
		return s, href, nil
	}
	return s, rest, nil
}

type stackedCloser struct {
	io.ReadCloser
	under io.Closer
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if uerr := s.under.Close(); err == nil {
		err = uerr
	}
	return err
}

// splitScheme splits "scheme://rest". Hrefs without a scheme return an
// empty scheme and the href unchanged.
func splitScheme(href string) (string, string) {
	i := strings.Index(href, "://")
	if i <= 0 {
		return "", href
	}
	scheme := href[:i]
	for _, c := range scheme {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return "", href
		}
	}
	return strings.ToLower(scheme), href[i+3:]
}

// ResolveHref resolves ref against the document location base. Absolute
// refs (with a scheme or a leading slash) and refs with no base are
// returned unchanged.
func ResolveHref(base, ref string) string {
	if ref == "" {
		return base
	}
	if base == "" || strings.HasPrefix(ref, "/") {
		return ref
	}
	if scheme, _ := splitScheme(ref); scheme != "" {
		return ref
	}
	scheme, rest := splitScheme(base)
	joined := path.Join(path.Dir(rest), ref)
	if scheme == "" {
		return joined
	}
	return scheme + "://" + joined
}
