// Package afsstore keeps one object per key under an abstract file storage URL
// (file://, mem://, or any scheme registered with viant/afs).
package afsstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const objectSuffix = ".json"

// Store implements storage.KV on top of afs.
type Store struct {
	fs      afs.Service
	baseURL string
}

// New prepares baseURL, creating the folder when it does not exist yet.
func New(ctx context.Context, baseURL string) (*Store, error) {
	baseURL = normalizeBaseURL(strings.TrimSpace(baseURL))
	if baseURL == "" {
		return nil, fmt.Errorf("afs base url is required")
	}

	fs := afs.New()
	exists, err := fs.Exists(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", baseURL, err)
	}
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("create %s: %w", baseURL, err)
		}
	}

	return &Store{fs: fs, baseURL: baseURL}, nil
}

// objectURL encodes key so that separators such as ':' never reach the path.
func (s *Store) objectURL(key string) string {
	return url.Join(s.baseURL, base64.RawURLEncoding.EncodeToString([]byte(key))+objectSuffix)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	location := s.objectURL(key)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, false, fmt.Errorf("inspect %s: %w", key, err)
	}
	if !exists {
		return nil, false, nil
	}

	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, false, fmt.Errorf("download %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.fs.Upload(ctx, s.objectURL(key), file.DefaultFileOsMode, bytes.NewReader(value)); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	location := s.objectURL(key)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func normalizeBaseURL(base string) string {
	if base == "" {
		return ""
	}
	if strings.Contains(base, "://") {
		return base
	}
	return url.Normalize(base, file.Scheme)
}
