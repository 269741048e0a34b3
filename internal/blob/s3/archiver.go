package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// multipartThreshold is the artifact size above which uploads are split.
const multipartThreshold = 2 * minPartSize

// Archiver stores raw counterparty artifacts under
// <prefix>/<YYYY-MM-DD>/<source>/<artifact>.
type Archiver struct {
	writer *Writer
	reader domain.BlobReader
	prefix string
}

// NewArchiver creates an Archiver writing below prefix.
func NewArchiver(writer *Writer, reader domain.BlobReader, prefix string) *Archiver {
	return &Archiver{writer: writer, reader: reader, prefix: strings.Trim(prefix, "/")}
}

// ArchiveKey returns the object key for a.
func ArchiveKey(prefix string, a domain.Artifact) string {
	return path.Join(prefix, a.Period.Format(time.DateOnly), a.Source, a.Name)
}

// Archive uploads the artifact unless an object already exists at its key,
// so re-running a business date does not rewrite the archive.
func (a *Archiver) Archive(ctx context.Context, art domain.Artifact) error {
	key := ArchiveKey(a.prefix, art)

	exists, err := a.reader.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", key, err)
	}
	if exists {
		return nil
	}

	if int64(len(art.Data)) > multipartThreshold {
		return a.writer.PutMultipart(ctx, key, bytes.NewReader(art.Data), "text/csv", minPartSize)
	}
	return a.writer.Put(ctx, key, bytes.NewReader(art.Data), "text/csv")
}
