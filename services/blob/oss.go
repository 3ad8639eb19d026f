package blobsvc

import (
	"context"
	"io"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// OSSStore keeps blobs in an Aliyun OSS bucket, keyed by path.
type OSSStore struct {
	bucket *oss.Bucket
}

var _ core.BlobStore = (*OSSStore)(nil)

func NewOSSStore(conf core.OSSConfig) (*OSSStore, error) {
	if conf.Endpoint == "" || conf.Bucket == "" {
		return nil, errors.New("oss endpoint and bucket are required")
	}
	client, err := oss.New(conf.Endpoint, conf.AccessKeyID, conf.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating oss client")
	}
	bucket, err := client.Bucket(conf.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %s", conf.Bucket)
	}
	return &OSSStore{bucket: bucket}, nil
}

func (s *OSSStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if size > 0 {
		opts = append(opts, oss.ContentLength(size))
	}
	return errors.Wrap(s.bucket.PutObject(path, r, opts...), "putting object")
}

func (s *OSSStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := s.bucket.GetObject(path, oss.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, core.NewNotFoundError("blob", path)
		}
		return nil, errors.Wrap(err, "getting object")
	}
	return rc, nil
}

func (s *OSSStore) Remove(ctx context.Context, path string) error {
	err := s.bucket.DeleteObject(path, oss.WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

func isNotFound(err error) bool {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode == http.StatusNotFound
	}
	return false
}
