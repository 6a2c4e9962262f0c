// Package publish uploads run archives to object storage, annotated with their
// content digest.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/animus-labs/wfrunner/internal/archive"
)

// DigestMetadataKey carries the sha256 of the uploaded file in user metadata.
const DigestMetadataKey = "sha256"

const archiveContentType = "application/gzip"

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, meta map[string]string) error
}

// Object describes an uploaded archive.
type Object struct {
	Key    string
	SHA256 string
	Size   int64
}

type Publisher struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger}
}

// ObjectKey places a file below prefix; prefix segments are joined with "/".
func ObjectKey(prefix, filePath string) string {
	return path.Join(strings.Trim(prefix, "/"), filepath.Base(filePath))
}

// Publish uploads the file at filePath under prefix.
func (p *Publisher) Publish(ctx context.Context, prefix, filePath string) (Object, error) {
	digest, size, err := archive.SHA256File(filePath)
	if err != nil {
		return Object{}, fmt.Errorf("digest %s: %w", filePath, err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	obj := Object{Key: ObjectKey(prefix, filePath), SHA256: digest, Size: size}
	meta := map[string]string{DigestMetadataKey: digest}
	if err := p.store.Put(ctx, obj.Key, f, size, archiveContentType, meta); err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", obj.Key, err)
	}
	p.logger.Info("archive published", "key", obj.Key, "sha256", digest, "size", size)
	return obj, nil
}
