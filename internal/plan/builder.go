// Package plan derives the container invocation plan of a workflow run: bind
// mounts, the nested parameter document and engine runtime options.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-labs/wfrunner/internal/domain"
)

// NamedPath is a parameter key bound to a host path.
type NamedPath struct {
	Key  string
	Path string
}

// Input is everything the planner needs about one run.
type Input struct {
	// Config is the flat host configuration; reserved keys are skipped.
	Config        map[string]string
	ProjectPath   string
	ExecutionPath string
	WorkflowDir   string
	WorkDir       string
	// Inputs are resolved, existing input paths.
	Inputs []NamedPath
	// Outputs are output roots; a trailing separator marks a directory.
	Outputs []NamedPath
	Runtime RuntimeOptions
}

// ExecutionPlan is the derived container invocation plan.
type ExecutionPlan struct {
	Mounts      []domain.MountSpec
	Parameters  []Param
	Document    map[string]any
	ParamsFile  string
	WorkflowDir string
	WorkDir     string
	Runtime     RuntimeOptions
}

// Build derives the plan, pre-creates missing output locations and writes the
// parameter document into the workdir.
func Build(in Input) (ExecutionPlan, error) {
	for name, p := range map[string]string{
		"project path":   in.ProjectPath,
		"execution path": in.ExecutionPath,
		"workflow dir":   in.WorkflowDir,
		"work dir":       in.WorkDir,
	} {
		if strings.TrimSpace(p) == "" {
			return ExecutionPlan{}, fmt.Errorf("%w: %s is required", domain.ErrConfiguration, name)
		}
	}

	mounts := baseMounts(in)
	params := configParams(in.Config)

	for _, input := range in.Inputs {
		p := normalizeExisting(input.Path)
		mounts = append(mounts, domain.MountSpec{HostPath: p, Access: domain.AccessReadOnly})
		params = append(params, Param{Key: input.Key, Value: p})
	}

	for _, output := range in.Outputs {
		p := output.Path
		if !covered(mounts, p) {
			var err error
			if p, err = prepareOutput(p); err != nil {
				return ExecutionPlan{}, fmt.Errorf("prepare output %s: %w", output.Key, err)
			}
			mounts = append(mounts, domain.MountSpec{HostPath: p, Access: domain.AccessReadWrite})
		}
		params = append(params, Param{Key: output.Key, Value: p})
	}

	doc, err := BuildDocument(params)
	if err != nil {
		return ExecutionPlan{}, err
	}
	paramsFile := filepath.Join(in.WorkDir, ParamsFileName)
	if err := WriteDocument(paramsFile, doc); err != nil {
		return ExecutionPlan{}, err
	}

	return ExecutionPlan{
		Mounts:      mounts,
		Parameters:  params,
		Document:    doc,
		ParamsFile:  paramsFile,
		WorkflowDir: in.WorkflowDir,
		WorkDir:     in.WorkDir,
		Runtime:     in.Runtime,
	}, nil
}

func baseMounts(in Input) []domain.MountSpec {
	var mounts []domain.MountSpec
	if !sameDir(in.ProjectPath, in.ExecutionPath) {
		mounts = append(mounts, domain.MountSpec{HostPath: dirPath(in.ProjectPath), Access: domain.AccessReadOnly})
	}
	if in.Runtime.HomeDir != "" {
		mounts = append(mounts, domain.MountSpec{HostPath: dirPath(in.Runtime.HomeDir), Access: domain.AccessReadOnly})
	}
	if in.Runtime.EngineHome != "" {
		mounts = append(mounts, domain.MountSpec{HostPath: dirPath(in.Runtime.EngineHome), Access: domain.AccessReadWrite})
	}
	return append(mounts,
		domain.MountSpec{HostPath: dirPath(in.WorkDir), Access: domain.AccessReadWrite},
		domain.MountSpec{HostPath: dirPath(in.ExecutionPath), Access: domain.AccessReadWrite},
		domain.MountSpec{HostPath: dirPath(in.WorkflowDir), Access: domain.AccessReadOnly},
	)
}

func configParams(config map[string]string) []Param {
	keys := make([]string, 0, len(config))
	for k := range config {
		if domain.IsReservedConfigKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]Param, 0, len(keys))
	for _, k := range keys {
		params = append(params, Param{Key: k, Value: config[k]})
	}
	return params
}

// covered reports whether p lies below a read-write directory mount already in
// the plan, in which case that mount exposes it.
func covered(mounts []domain.MountSpec, p string) bool {
	for _, m := range mounts {
		if m.Access != domain.AccessReadWrite || !m.IsDir() {
			continue
		}
		if isSubPath(m.HostPath, p) {
			return true
		}
	}
	return false
}

func isSubPath(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// normalizeExisting makes the trailing separator agree with what is on disk.
func normalizeExisting(p string) string {
	info, err := os.Stat(p)
	if err != nil {
		return p
	}
	switch {
	case strings.HasSuffix(p, "/") && !info.IsDir():
		return strings.TrimRight(p, "/")
	case !strings.HasSuffix(p, "/") && info.IsDir():
		return p + "/"
	}
	return p
}

// prepareOutput makes sure an uncovered output exists before mounting it. A
// missing file is created empty so the container runtime does not create a
// directory in its place.
func prepareOutput(p string) (string, error) {
	if _, err := os.Stat(p); err == nil {
		return normalizeExisting(p), nil
	}
	if strings.HasSuffix(p, "/") {
		return p, os.MkdirAll(p, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	return p, f.Close()
}

func dirPath(p string) string {
	return strings.TrimRight(p, "/") + "/"
}

func sameDir(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// CurrentUser returns the uid and gid of the invoking process.
func CurrentUser() (int, int) {
	return os.Getuid(), os.Getgid()
}

// ParseFlag interprets a host configuration flag value.
func ParseFlag(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
