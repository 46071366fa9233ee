package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes generated documents to Cloud Storage.
type Uploader struct {
	client *gcs.Client
}

// NewUploader constructs an Uploader backed by the provided Cloud Storage client.
func NewUploader(client *gcs.Client) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	return &Uploader{client: client}, nil
}

// UploadInput describes a single object write.
type UploadInput struct {
	Bucket      string
	Object      string
	ContentType string
	Data        []byte
	Metadata    map[string]string
}

// Upload creates the object and fails if it already exists, so a rerun never overwrites an earlier
// backup.
func (u *Uploader) Upload(ctx context.Context, in UploadInput) error {
	if u == nil || u.client == nil {
		return errors.New("storage uploader: client is not initialised")
	}
	bucket := strings.TrimSpace(in.Bucket)
	object := strings.TrimSpace(in.Object)
	if bucket == "" || object == "" {
		return errors.New("storage uploader: bucket and object must be provided")
	}

	handle := u.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	w := handle.NewWriter(ctx)
	w.ContentType = in.ContentType
	w.Metadata = in.Metadata

	if _, err := w.Write(in.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage uploader: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage uploader: finalise %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the current credentials.
func (u *Uploader) Ping(ctx context.Context, bucket string) error {
	if u == nil || u.client == nil {
		return errors.New("storage uploader: client is not initialised")
	}
	if _, err := u.client.Bucket(bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage uploader: bucket %s: %w", bucket, err)
	}
	return nil
}
