package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// ArchiveImpl implements domain.Archiver by querying the tick store for aged
// rows, serializing them to JSONL, uploading the file to blob storage, and
// then deleting the archived rows from the primary store. Deletion only runs
// after the upload has succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
	ticks  domain.TickStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, ticks domain.TickStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		ticks:  ticks,
	}
}

// ArchiveTicks moves all ticks recorded before the cutoff out of the primary
// store. The archive lands at archive/ticks/YYYY-MM.jsonl, partitioned by
// the year-month of the cutoff. Returns the number of rows archived.
func (a *ArchiveImpl) ArchiveTicks(ctx context.Context, before time.Time) (int64, error) {
	ticks, err := a.ticks.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks query: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(ticks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks marshal: %w", err)
	}

	path := archivePath("ticks", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks upload: %w", err)
	}

	deleted, err := a.ticks.DeleteBefore(ctx, before)
	if err != nil {
		// Upload succeeded; a failed delete is retried by the next run.
		return int64(len(ticks)), fmt.Errorf("s3blob: archive ticks delete: %w", err)
	}

	return deleted, nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/ticks/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
