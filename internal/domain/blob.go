package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SourceRepository fetches a named artifact published by a counterparty.
// It returns ErrNotFound when the artifact has not been published.
type SourceRepository interface {
	Fetch(ctx context.Context, source, artifact string) ([]byte, error)
}

// Artifact is a raw file fetched during collection.
type Artifact struct {
	Period time.Time
	Source string
	Name   string
	Data   []byte
}

// ArtifactSink accepts raw artifacts for out-of-band archival.
type ArtifactSink interface {
	Submit(ctx context.Context, a Artifact) error
}
