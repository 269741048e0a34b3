package s3blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// SourceRepository implements domain.SourceRepository over the drop bucket.
// Each source publishes under its own key prefix.
type SourceRepository struct {
	reader   domain.BlobReader
	prefixes map[string]string
}

// NewSourceRepository creates a SourceRepository. prefixes maps a source
// name to its drop prefix; a source without an entry uses its own name.
func NewSourceRepository(reader domain.BlobReader, prefixes map[string]string) *SourceRepository {
	p := make(map[string]string, len(prefixes))
	for name, prefix := range prefixes {
		p[name] = strings.Trim(prefix, "/")
	}
	return &SourceRepository{reader: reader, prefixes: p}
}

// Key returns the object key of artifact for source.
func (r *SourceRepository) Key(source, artifact string) string {
	prefix, ok := r.prefixes[source]
	if !ok {
		prefix = source
	}
	if prefix == "" {
		return artifact
	}
	return prefix + "/" + artifact
}

// Fetch downloads the whole artifact. It returns domain.ErrNotFound when the
// source has not published it.
func (r *SourceRepository) Fetch(ctx context.Context, source, artifact string) ([]byte, error) {
	key := r.Key(source, artifact)
	body, err := r.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return data, nil
}

var _ domain.SourceRepository = (*SourceRepository)(nil)
