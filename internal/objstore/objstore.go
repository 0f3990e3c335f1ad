// Package objstore is a filesystem-backed object store for attachments and avatars.
// Objects are addressed by opaque references of the form images/<owner>/<unixms><name>.
package objstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/matheus3301/chatter/internal/store"
)

// Store keeps objects under Root. When BaseURL is set, resolved URLs point at it.
type Store struct {
	root    string
	baseURL string
	now     func() time.Time
}

// New creates a store rooted at dir.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}, nil
}

// Upload writes data and returns its reference. When name has no extension one
// is derived from the content, so classification by suffix keeps working.
func (s *Store) Upload(ctx context.Context, owner, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if owner == "" || strings.ContainsAny(owner, `/\`) {
		return "", fmt.Errorf("invalid owner %q", owner)
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	if path.Ext(name) == "" {
		name += mimetype.Detect(data).Extension()
	}

	ref := fmt.Sprintf("images/%s/%d%s", owner, s.now().UnixMilli(), name)
	full, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0600); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return ref, nil
}

// ResolveURL turns a reference into a fetchable URL. Missing objects yield store.ErrNotFound.
func (s *Store) ResolveURL(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("object %q: %w", ref, store.ErrNotFound)
		}
		return "", err
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + ref, nil
	}
	return (&url.URL{Scheme: "file", Path: full}).String(), nil
}

// Open returns the raw bytes of ref.
func (s *Store) Open(ref string) ([]byte, error) {
	full, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %q: %w", ref, store.ErrNotFound)
	}
	return data, err
}

func (s *Store) path(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if clean == "/" || clean != "/"+ref {
		return "", fmt.Errorf("invalid object reference %q", ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
