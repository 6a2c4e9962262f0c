package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// WorkflowIdentity is the observed identity of a materialized workflow checkout.
type WorkflowIdentity struct {
	RemoteURI   string `json:"remote_uri"`
	Revision    string `json:"revision"`
	Tainted     bool   `json:"tainted"`
	TaintReport string `json:"taint_report,omitempty"`
}

// Matches reports whether the identity points at the requested coordinates.
func (w WorkflowIdentity) Matches(uri, revision string) bool {
	return w.RemoteURI == uri && w.Revision == revision
}

// CacheKey addresses a materialized (uri, revision) pair inside the workflow cache.
type CacheKey struct {
	URIDigest      string
	RevisionDigest string
}

// NewCacheKey derives the two-level cache key for a repository revision.
func NewCacheKey(uri, revision string) CacheKey {
	return CacheKey{
		URIDigest:      sha1Hex(uri),
		RevisionDigest: sha1Hex(revision),
	}
}

// Dir returns the cache directory of the key below baseDir.
func (k CacheKey) Dir(baseDir string) string {
	return filepath.Join(baseDir, k.URIDigest, k.RevisionDigest)
}

// Parent returns the per-repository directory shared by all revisions of a URI.
func (k CacheKey) Parent(baseDir string) string {
	return filepath.Join(baseDir, k.URIDigest)
}

func (k CacheKey) String() string {
	return strings.Join([]string{k.URIDigest, k.RevisionDigest}, "/")
}

func sha1Hex(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}
