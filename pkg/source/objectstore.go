/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: objectstore.go
Description: Object-store byte sources. Opens s3://bucket/key locations from a
MinIO or S3 compatible endpoint and lists objects under a prefix, so scans can
run over buckets the same way they run over directories.
*/

package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Scheme prefixes object-store locations
const Scheme = "s3://"

// ObjectConfig holds connection settings for the object store
type ObjectConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Region         string `mapstructure:"region"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ObjectClient is the subset of the MinIO client used for reading
type ObjectClient interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// NewObjectClient connects to a MinIO or S3 endpoint
func NewObjectClient(cfg ObjectConfig) (ObjectClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint must not be empty")
	}
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ResponseHeaderTimeout: timeoutDuration,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &minioObjectClient{Client: client}, nil
}

type minioObjectClient struct {
	*minio.Client
}

func (c *minioObjectClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

// ParseLocation splits s3://bucket/key into bucket and key
func ParseLocation(loc string) (bucket, key string, err error) {
	if !strings.HasPrefix(loc, Scheme) {
		return "", "", fmt.Errorf("not an object store location: %s", loc)
	}
	rest := strings.TrimPrefix(loc, Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", loc)
	}
	return bucket, key, nil
}

// IsObjectLocation reports whether loc uses the object-store scheme
func IsObjectLocation(loc string) bool {
	return strings.HasPrefix(loc, Scheme)
}

// ObjectStore opens object-store locations as sources
type ObjectStore struct {
	client ObjectClient
}

// NewObjectStore wraps a client
func NewObjectStore(client ObjectClient) *ObjectStore {
	return &ObjectStore{client: client}
}

// Open returns a depth-zero source streaming one object
func (o *ObjectStore) Open(ctx context.Context, loc string) (*Source, error) {
	bucket, key, err := ParseLocation(loc)
	if err != nil {
		return nil, interfaces.NewSourceError(loc, "parse", err)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, interfaces.NewSourceError(loc, "open", interfaces.ErrIsDirectory)
	}

	info, err := o.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, interfaces.NewSourceError(loc, "stat", err)
	}
	body, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, interfaces.NewSourceError(loc, "get", err)
	}

	src := FromReader(loc, body)
	src.Name = pathBase(key)
	src.Size = info.Size
	return src, nil
}

// List returns the locations of every object under a prefix location
func (o *ObjectStore) List(ctx context.Context, loc string) ([]string, error) {
	bucket, prefix, err := ParseLocation(loc)
	if err != nil {
		return nil, interfaces.NewSourceError(loc, "parse", err)
	}

	var out []string
	for obj := range o.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, interfaces.NewSourceError(loc, "list", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, Scheme+bucket+"/"+obj.Key)
	}
	return out, nil
}

func pathBase(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
