package blobsvc

import (
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// New returns the blob store selected by `conf.Storage.Backend`.
func New(conf *core.Config) (core.BlobStore, error) {
	switch conf.Storage.Backend {
	case "", "local":
		return NewLocalStore(conf.Storage.LocalDir)
	case "oss":
		return NewOSSStore(conf.Storage.OSS)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
