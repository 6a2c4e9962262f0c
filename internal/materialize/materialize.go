// Package materialize fetches workflow repositories into a content-addressed
// cache and re-identifies existing checkouts.
//
// Cache layout: <basedir>/<sha1(uri)>/<sha1(revision)>. A checkout is built in a
// hidden staging directory next to its final location and renamed into place once
// clone, checkout and submodule initialization all succeeded, so an existing cache
// directory is always complete.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
	"github.com/animus-labs/wfrunner/internal/platform/runid"
)

type Materializer struct {
	git     string
	baseDir string
	cmd     procexec.Commander
	logger  *slog.Logger
}

func New(gitCmd, baseDir string, cmd procexec.Commander, logger *slog.Logger) (*Materializer, error) {
	gitCmd = strings.TrimSpace(gitCmd)
	if gitCmd == "" {
		gitCmd = "git"
	}
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("workflow cache basedir is required")
	}
	if cmd == nil {
		cmd = procexec.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{git: gitCmd, baseDir: baseDir, cmd: cmd, logger: logger}, nil
}

// Materialize returns the local checkout of revision of uri, fetching it when the
// cache has no entry yet. Existing entries are trusted as-is.
func (m *Materializer) Materialize(ctx context.Context, uri, revision string) (string, error) {
	uri = strings.TrimSpace(uri)
	revision = strings.TrimSpace(revision)
	if uri == "" || revision == "" {
		return "", fmt.Errorf("%w: repository uri and revision are required", domain.ErrConfiguration)
	}

	key := domain.NewCacheKey(uri, revision)
	dest := key.Dir(m.baseDir)
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		m.logger.Debug("workflow cache hit", "uri", uri, "revision", revision, "path", dest)
		return dest, nil
	}

	parent := key.Parent(m.baseDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("%w: create cache dir for %s: %w", domain.ErrMaterialization, uri, err)
	}

	staging := filepath.Join(parent, ".tmp-"+key.RevisionDigest+"-"+runid.Hex())
	defer func() { _ = os.RemoveAll(staging) }()

	if err := m.fetch(ctx, uri, revision, staging); err != nil {
		return "", err
	}

	if err := os.Rename(staging, dest); err != nil {
		if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
			m.logger.Debug("workflow cache entry published concurrently", "uri", uri, "revision", revision, "path", dest)
			return dest, nil
		}
		return "", fmt.Errorf("%w: publish checkout of %s (%s): %w", domain.ErrMaterialization, uri, revision, err)
	}
	m.logger.Info("workflow materialized", "uri", uri, "revision", revision, "path", dest)
	return dest, nil
}

func (m *Materializer) fetch(ctx context.Context, uri, revision, dir string) error {
	steps := []procexec.Command{
		// No checkout, so one clone serves any revision of the repository.
		{Name: m.git, Args: []string{"clone", "-n", "--recurse-submodules", uri, dir}},
		{Name: m.git, Args: []string{"checkout", revision}, Dir: dir},
		{Name: m.git, Args: []string{"submodule", "update", "--init"}, Dir: dir},
	}
	for _, step := range steps {
		if _, err := m.cmd.Run(ctx, step); err != nil {
			return fmt.Errorf("%w: could not fetch %q (revision %q): %w", domain.ErrMaterialization, uri, revision, err)
		}
	}
	return nil
}

// Identify inspects the checkout at dir. Every probe is best-effort: a failing
// probe is logged and leaves its field empty.
func (m *Materializer) Identify(ctx context.Context, dir string) domain.WorkflowIdentity {
	var id domain.WorkflowIdentity
	if out, ok := m.probe(ctx, dir, "workflow remote", "remote", "get-url", "origin"); ok {
		id.RemoteURI = firstLine(out)
	}
	if out, ok := m.probe(ctx, dir, "workflow HEAD", "rev-parse", "HEAD"); ok {
		id.Revision = firstLine(out)
	}
	if out, ok := m.probe(ctx, dir, "workflow taint state", "status", "--porcelain"); ok && len(out) > 0 {
		id.Tainted = true
		id.TaintReport = out
	}
	return id
}

func (m *Materializer) probe(ctx context.Context, dir, what string, args ...string) (string, bool) {
	res, err := m.cmd.Run(ctx, procexec.Command{Name: m.git, Args: args, Dir: dir})
	if err != nil {
		m.logger.Warn("failed while checking "+what, "dir", dir, "error", err)
		return "", false
	}
	return string(res.Stdout), true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
