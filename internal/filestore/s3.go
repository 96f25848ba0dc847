package filestore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	commons3 "github.com/xxxsen/common/s3"
)

type s3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	PublicURL string `json:"public_url"`
	UseSSL    bool   `json:"use_ssl"`
}

// objectClient is the part of the s3 client the store needs.
type objectClient interface {
	Upload(ctx context.Context, fileid string, r io.ReadSeeker, sz int64, cks ...string) (string, error)
	Download(ctx context.Context, fileid string) (io.ReadCloser, error)
}

type s3Store struct {
	client  objectClient
	prefix  string
	baseURL string
}

func init() {
	Register("s3", createS3Store)
}

func createS3Store(args interface{}) (Store, error) {
	config := &s3Config{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Endpoint == "" || config.Bucket == "" || config.SecretID == "" || config.SecretKey == "" {
		return nil, fmt.Errorf("s3 endpoint/bucket/secret_id/secret_key are required")
	}
	if config.Region == "" {
		config.Region = "cn"
	}
	client, err := commons3.New(
		commons3.WithEndpoint(config.Endpoint),
		commons3.WithSecret(config.SecretID, config.SecretKey),
		commons3.WithBucket(config.Bucket),
		commons3.WithRegion(config.Region),
		commons3.WithSSL(config.UseSSL),
	)
	if err != nil {
		return nil, err
	}
	return newS3Store(client, config), nil
}

func newS3Store(client objectClient, config *s3Config) *s3Store {
	base := strings.TrimSuffix(config.PublicURL, "/")
	if base == "" {
		base = bucketURL(config.Endpoint, config.Bucket, config.UseSSL)
	}
	return &s3Store{
		client:  client,
		prefix:  strings.Trim(config.Prefix, "/"),
		baseURL: base,
	}
}

func (s *s3Store) Type() string {
	return "s3"
}

// objectKey maps a media key onto the bucket, under the configured prefix.
func (s *s3Store) objectKey(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

// URL links straight to the bucket; requests never go through the api.
func (s *s3Store) URL(key, _ string) string {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + objectKey
}

func (s *s3Store) Save(ctx context.Context, key string, r ReadSeekCloser, size int64) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.client.Upload(ctx, objectKey, r, size); err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}

// Open downloads the object into a temporary file so callers can seek. The
// file is removed on Close.
func (s *s3Store) Open(ctx context.Context, key string) (ReadSeekCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.client.Download(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "quizpack-s3-*")
	if err != nil {
		return nil, err
	}
	local := &tempObject{File: tmp}
	if _, err := io.Copy(tmp, body); err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = local.Close()
		return nil, err
	}
	return local, nil
}

type tempObject struct {
	*os.File
}

func (t *tempObject) Close() error {
	err := t.File.Close()
	if rmErr := os.Remove(t.File.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

func bucketURL(endpoint, bucket string, useSSL bool) string {
	ep := endpoint
	if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		ep = scheme + "://" + ep
	}
	u, err := url.Parse(ep)
	if err != nil {
		return strings.TrimSuffix(ep, "/") + "/" + bucket
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + bucket
	return strings.TrimSuffix(u.String(), "/")
}
