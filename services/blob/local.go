package blobsvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// LocalStore keeps blobs as files under a root directory.
type LocalStore struct {
	root string
}

var _ core.BlobStore = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage dir")
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating storage dir")
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) resolve(p string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))
	if full == s.root || !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", errors.Errorf("invalid blob path %q", p)
	}
	return full, nil
}

func (s *LocalStore) Upload(ctx context.Context, p string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return errors.Wrap(err, "creating blob dir")
	}

	// write to a temp file first so a failed copy leaves nothing behind
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating blob")
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "writing blob")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "writing blob")
	}
	return errors.Wrap(os.Rename(tmp.Name(), full), "storing blob")
}

func (s *LocalStore) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("blob", p)
		}
		return nil, errors.Wrap(err, "opening blob")
	}
	return f, nil
}

// Remove deletes the blob at `p`. Removing a missing blob is not an error.
func (s *LocalStore) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing blob")
	}
	return nil
}
