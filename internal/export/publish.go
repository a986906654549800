package export

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Publisher uploads exported snapshots to a MinIO/S3 bucket
type Publisher struct {
	client *minio.Client
	bucket string
	folder string
	logger *slog.Logger
}

// NewPublisher creates a publisher for cfg
func NewPublisher(cfg config.MinioConfig, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		folder: cfg.Folder,
		logger: logger.With("component", "publish"),
	}, nil
}

// Publish uploads the file at localPath and returns its object name.
func (p *Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	object := objectName(p.folder, localPath)

	info, err := p.client.FPutObject(ctx, p.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) {
			p.logger.Error("upload failed", "object", object, "code", resp.Code, "message", resp.Message, "bucket", resp.BucketName)
		}
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	if info.Size != st.Size() {
		return "", fmt.Errorf("uploaded size mismatch for %s: expected %d bytes, got %d", object, st.Size(), info.Size)
	}

	p.logger.Info("snapshot published", "bucket", p.bucket, "object", object, "size", info.Size)
	return object, nil
}

func objectName(folder, localPath string) string {
	name := filepath.Base(localPath)
	if folder != "" {
		name = path.Join(folder, name)
	}
	return strings.TrimPrefix(sanitizePath(name), "/")
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func sanitizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	segments := strings.Split(p, "/")
	for i, segment := range segments {
		// Decode first so already-encoded names are not encoded twice
		if decoded, err := url.QueryUnescape(segment); err == nil {
			segment = decoded
		}
		segment = strings.ReplaceAll(segment, "&", "and")
		segment = strings.ReplaceAll(segment, "+", "plus")
		segments[i] = url.QueryEscape(segment)
	}

	sanitized := strings.Join(segments, "/")
	for strings.Contains(sanitized, "//") {
		sanitized = strings.ReplaceAll(sanitized, "//", "/")
	}
	return sanitized
}
