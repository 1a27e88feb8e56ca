package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

type fakeWriter struct {
	path        string
	contentType string
	body        []byte
	err         error
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.path = path
	f.contentType = contentType
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.body = body
	return nil
}

type fakeTickStore struct {
	ticks   []domain.Tick
	deleted int64
	delErr  error
}

func (f *fakeTickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error { return nil }

func (f *fakeTickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Tick, error) {
	return f.ticks, nil
}

func (f *fakeTickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	f.deleted = int64(len(f.ticks))
	return f.deleted, nil
}

func TestArchiveTicks(t *testing.T) {
	store := &fakeTickStore{ticks: []domain.Tick{
		{Source: "KALSHI", ContractID: "FED-YES", Price: 0.61, TsSource: 1, TsIngest: 2},
		{Source: "MANIFOLD", ContractID: "fed-yes", Price: 0.57, TsSource: 3, TsIngest: 4},
	}}
	writer := &fakeWriter{}
	arch := NewArchiver(writer, store)

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveTicks(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived = %d, want 2", n)
	}
	if writer.path != "archive/ticks/2026-08.jsonl" {
		t.Fatalf("path = %q, want archive/ticks/2026-08.jsonl", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Fatalf("content type = %q", writer.contentType)
	}
	if lines := bytes.Count(writer.body, []byte("\n")); lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}
	if !strings.Contains(string(writer.body), `"contract_id":"FED-YES"`) {
		t.Fatalf("archive body missing tick: %s", writer.body)
	}
	if store.deleted != 2 {
		t.Fatalf("deleted = %d, want 2 after successful upload", store.deleted)
	}
}

func TestArchiveTicksEmpty(t *testing.T) {
	writer := &fakeWriter{}
	arch := NewArchiver(writer, &fakeTickStore{})

	n, err := arch.ArchiveTicks(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 0 || writer.path != "" {
		t.Fatal("nothing should be uploaded for an empty range")
	}
}

func TestArchiveTicksUploadFailureSkipsDelete(t *testing.T) {
	store := &fakeTickStore{ticks: []domain.Tick{
		{Source: "KALSHI", ContractID: "X", Price: 0.5, TsSource: 1, TsIngest: 2},
	}}
	writer := &fakeWriter{err: errors.New("bucket gone")}
	arch := NewArchiver(writer, store)

	if _, err := arch.ArchiveTicks(context.Background(), time.Now()); err == nil {
		t.Fatal("expected upload error")
	}
	if store.deleted != 0 {
		t.Fatal("rows must not be deleted when the upload fails")
	}
}
