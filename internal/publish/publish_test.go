package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type memStore struct {
	objects map[string][]byte
	meta    map[string]map[string]string
	err     error
}

func (s *memStore) Put(_ context.Context, key string, body io.Reader, size int64, _ string, meta map[string]string) error {
	if s.err != nil {
		return s.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
		s.meta = map[string]map[string]string{}
	}
	s.objects[key] = b
	s.meta[key] = meta
	return nil
}

func TestPublishUploadsWithDigest(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nfstats.tar.gz")
	content := []byte("archive bytes")
	if err := os.WriteFile(file, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := &memStore{}
	obj, err := New(store, nil).Publish(context.Background(), "/participant-1/20240102T030405/", file)
	if err != nil {
		t.Fatalf("Publish() err=%v", err)
	}

	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])
	if obj.Key != "participant-1/20240102T030405/nfstats.tar.gz" {
		t.Fatalf("Key=%q", obj.Key)
	}
	if obj.SHA256 != want || obj.Size != int64(len(content)) {
		t.Fatalf("obj=%+v", obj)
	}
	if string(store.objects[obj.Key]) != string(content) {
		t.Fatalf("stored content mismatch")
	}
	if store.meta[obj.Key][DigestMetadataKey] != want {
		t.Fatalf("meta=%v", store.meta[obj.Key])
	}
}

func TestPublishErrors(t *testing.T) {
	p := New(&memStore{err: errors.New("bucket gone")}, nil)
	if _, err := p.Publish(context.Background(), "x", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	file := filepath.Join(t.TempDir(), "a.tar.gz")
	if err := os.WriteFile(file, []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Publish(context.Background(), "x", file); err == nil {
		t.Fatalf("expected upload error")
	}
}
