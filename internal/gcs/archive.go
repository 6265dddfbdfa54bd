// Package gcs archives rendered receipts in a Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const receiptPrefix = "receipts"

// Archive stores receipt images under receipts/YYYY/MM/ in one bucket.
// It uses Application Default Credentials.
type Archive struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewArchive creates a storage client for bucket.
func NewArchive(ctx context.Context, bucket string) (*Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchive: bucket name is empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchive: creating storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket, now: time.Now}, nil
}

// Close releases the storage client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// SaveReceipt uploads a PNG receipt and returns its gs:// URI.
func (a *Archive) SaveReceipt(ctx context.Context, name string, png []byte) (string, error) {
	object := ObjectPath(a.now(), name)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "image/png"

	if _, err := w.Write(png); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("SaveReceipt: writing %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("SaveReceipt: finalizing %s: %w", object, err)
	}

	return URI(a.bucket, object), nil
}

// Fetch downloads an archived object by its gs:// URI.
func (a *Archive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ObjectPath places a receipt under its upload month.
func ObjectPath(t time.Time, name string) string {
	return path.Join(receiptPrefix, t.UTC().Format("2006/01"), path.Base(name))
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid storage URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid storage URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last path element of a gs:// URI.
// e.g., "gs://bucket/receipts/2024/10/recu-9AB.png" → "recu-9AB.png"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
