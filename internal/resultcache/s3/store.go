// Package s3 is the durable result store. Bundles are written as JSON
// envelopes carrying their own expiry, since object storage has no native
// per-object TTL; expiry is enforced on read.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/farmpulse/hexquery/internal/resultcache"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type client interface {
	Put(ctx context.Context, bucket, key string, payload []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

type envelope struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
}

type Store struct {
	client client
	bucket string
	prefix string
	now    func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{
		client: mc,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cleanPrefix(cfg.Prefix),
		now:    time.Now,
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, c client) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Store{
		client: c,
		bucket: strings.TrimSpace(bucket),
		prefix: cleanPrefix(prefix),
		now:    time.Now,
	}, nil
}

func (s *Store) Put(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	key, err := s.objectKey(id)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	body, err := json.Marshal(envelope{
		ExpiresAt: s.now().Add(ttl),
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("marshal result envelope: %w", err)
	}
	if err := s.client.Put(ctx, s.bucket, key, body); err != nil {
		return fmt.Errorf("put result %q: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	key, err := s.objectKey(id)
	if err != nil {
		return nil, err
	}
	body, err := s.client.Get(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, resultcache.ErrNotFound) {
			return nil, resultcache.ErrNotFound
		}
		return nil, fmt.Errorf("get result %q: %w", id, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode result envelope %q: %w", id, err)
	}
	if s.now().After(env.ExpiresAt) {
		_ = s.client.Delete(ctx, s.bucket, key)
		return nil, resultcache.ErrNotFound
	}
	return env.Payload, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := s.objectKey(id)
	if err != nil {
		return err
	}
	if err := s.client.Delete(ctx, s.bucket, key); err != nil {
		if errors.Is(err, resultcache.ErrNotFound) {
			return resultcache.ErrNotFound
		}
		return fmt.Errorf("delete result %q: %w", id, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.client.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimSuffix(path.Base(key), ".json")
		if name != "" && name != "." {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) objectKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("result id is required")
	}
	if strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid result id: %q", id)
	}
	if s.prefix == "" {
		return id + ".json", nil
	}
	return path.Join(s.prefix, id+".json"), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, payload []byte) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return mapMinioErr(err)
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	defer func() { _ = obj.Close() }()
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return body, nil
}

func (m *minioClient) Delete(ctx context.Context, bucket, key string) error {
	if _, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return mapMinioErr(err)
	}
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var keys []string
	for object := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, mapMinioErr(object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapMinioErr(err)
	}
	return exists, nil
}

func (m *minioClient) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return resultcache.ErrNotFound
		}
	}
	return err
}
