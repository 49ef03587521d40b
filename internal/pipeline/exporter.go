package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

// Exporter writes log bundles to S3 as gzipped JSON lines.
type Exporter struct {
	client *s3.Client
	bucket string
}

func NewExporter(ctx context.Context, bucket string) (*Exporter, error) {
	if bucket == "" {
		return nil, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return &Exporter{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// Upload compresses the rows and puts them under
// exports/{integration}/{topic}.json.gz. Returns the object key and
// the raw/compressed sizes.
func (e *Exporter) Upload(ctx context.Context, integrationID, topicID string, rows []LogRow) (string, int, int, error) {
	var raw bytes.Buffer
	enc := json.NewEncoder(&raw)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return "", 0, 0, err
		}
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		return "", 0, 0, err
	}
	if err := gz.Close(); err != nil {
		return "", 0, 0, err
	}

	key := fmt.Sprintf("exports/%s/%s.json.gz", integrationID, topicID)

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", 0, 0, err
	}

	return key, raw.Len(), compressed.Len(), nil
}
