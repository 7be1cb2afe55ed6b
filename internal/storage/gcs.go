package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/field-notes/apiserver/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSBackend keeps the document as one object in a Google Cloud Storage
// bucket. Revisions are object generations, checked by GCS preconditions.
type GCSBackend struct {
	client    *storage.Client
	bucket    string
	projectID string
	key       string
}

// NewGCSBackend constructs a GCS backend from config.
func NewGCSBackend(ctx context.Context, cfg config.GCSConfig, key string) (*GCSBackend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("gcs object key is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSBackend{
		client:    client,
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
		key:       key,
	}, nil
}

// EnsureBucket ensures the configured bucket exists.
func (g *GCSBackend) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil)
}

func (g *GCSBackend) Read(ctx context.Context) ([]byte, string, error) {
	reader, err := g.client.Bucket(g.bucket).Object(g.key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", ErrNotExist
		}
		return nil, "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", err
	}
	return data, strconv.FormatInt(reader.Attrs.Generation, 10), nil
}

func (g *GCSBackend) Write(ctx context.Context, data []byte, rev string) (string, error) {
	obj := g.client.Bucket(g.bucket).Object(g.key)
	switch rev {
	case AnyRevision:
	case NoRevision:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	default:
		generation, err := strconv.ParseInt(rev, 10, 64)
		if err != nil {
			return "", ErrRevisionMismatch
		}
		obj = obj.If(storage.Conditions{GenerationMatch: generation})
	}

	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", gcsError(err)
	}
	if err := writer.Close(); err != nil {
		return "", gcsError(err)
	}
	return strconv.FormatInt(writer.Attrs().Generation, 10), nil
}

func (g *GCSBackend) Name() string {
	return "gcs"
}

// Close closes the underlying GCS client.
func (g *GCSBackend) Close() error {
	return g.client.Close()
}

func gcsError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return ErrRevisionMismatch
	}
	return err
}
