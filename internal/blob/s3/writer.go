package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploadPartSize is the multipart chunk size for archive uploads. 5 MiB is
// the S3 minimum; archive batches rarely exceed one part.
const uploadPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter for archive batches. Uploads go
// through the SDK upload manager, so a day of ticks that outgrows a single
// part is split and uploaded concurrently without the caller noticing.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		bucket: c.bucket,
	}
}

// Put uploads one archive object. An empty contentType defaults to NDJSON,
// the format every archive batch is written in.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/x-ndjson"
	}

	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload archive %s: %w", path, err)
	}
	return nil
}
