// Package engine determines the execution engine version a workflow package needs
// and provisions the matching container image.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
)

type Resolver struct {
	docker         string
	image          string
	defaultVersion string
	cmd            procexec.Commander
	logger         *slog.Logger
}

func NewResolver(dockerCmd, image, defaultVersion string, cmd procexec.Commander, logger *slog.Logger) *Resolver {
	if strings.TrimSpace(dockerCmd) == "" {
		dockerCmd = "docker"
	}
	if cmd == nil {
		cmd = procexec.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		docker:         dockerCmd,
		image:          image,
		defaultVersion: defaultVersion,
		cmd:            cmd,
		logger:         logger,
	}
}

// ResolveVersion never fails: packages without a usable declaration run on the
// configured default version.
func (r *Resolver) ResolveVersion(packageDir string) string {
	decl, ok := ReadDeclaration(packageDir)
	if !ok {
		r.logger.Debug("no engine version declared, using default", "dir", packageDir, "version", r.defaultVersion)
	}
	return SelectVersion(decl, ok, r.defaultVersion)
}

// ImageTag composes the engine image reference of version.
func (r *Resolver) ImageTag(version string) string {
	return r.image + ":" + version
}

// EnsureImage makes sure the engine image of version is present locally, pulling
// it when the local listing comes back empty.
func (r *Resolver) EnsureImage(ctx context.Context, version string) (string, error) {
	tag := r.ImageTag(version)

	res, err := r.cmd.Run(ctx, procexec.Command{
		Name: r.docker,
		Args: []string{"images", "--format", "{{.ID}}\t{{.Tag}}", tag},
	})
	if err != nil {
		return "", fmt.Errorf("%w: checking engine image %s: %w", domain.ErrEngineProvisioning, tag, err)
	}
	if len(strings.TrimSpace(string(res.Stdout))) > 0 {
		return tag, nil
	}

	r.logger.Info("pulling engine image", "image", tag)
	if _, err := r.cmd.Run(ctx, procexec.Command{Name: r.docker, Args: []string{"pull", tag}}); err != nil {
		return "", fmt.Errorf("%w: pulling engine image %s: %w", domain.ErrEngineProvisioning, tag, err)
	}
	return tag, nil
}
