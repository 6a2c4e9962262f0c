// Package tool runs one workflow execution on behalf of the host platform: it
// resolves input and output locations, drives materialization, engine
// provisioning, planning and execution, then collects the produced outputs into
// archives and metadata records.
package tool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/wfrunner/internal/config"
	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/engine"
	"github.com/animus-labs/wfrunner/internal/materialize"
	"github.com/animus-labs/wfrunner/internal/plan"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
	"github.com/animus-labs/wfrunner/internal/platform/runid"
	"github.com/animus-labs/wfrunner/internal/publish"
	"github.com/animus-labs/wfrunner/internal/runner"
)

const (
	// RunnerTag annotates every output metadata record.
	RunnerTag = "VRE_NF_RUNNER"

	StampLayout        = "20060102T150405"
	WorkdirArchiveName = "nf-workdir.tar.gz"

	ResultsDirName = "results"
	StatsDirName   = "nf_stats"
	OtherDirName   = "other_files"
)

// Recorder persists a summary of each execution.
type Recorder interface {
	Record(ctx context.Context, rec domain.RunRecord) error
}

// Publisher uploads a produced archive below prefix.
type Publisher interface {
	Publish(ctx context.Context, prefix, filePath string) (publish.Object, error)
}

type Options struct {
	Commander procexec.Commander
	Logger    *slog.Logger
	// Recorder and Publisher are optional; their failures never fail a run.
	Recorder  Recorder
	Publisher Publisher
	// Stdout and Stderr receive the engine output as it is produced.
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	// HomeDir defaults to the invoking user's home directory.
	HomeDir string
	// TempDir hosts the per-run work and staging directories.
	TempDir string
}

type Tool struct {
	cfg           config.Config
	configuration map[string]string
	configDir     string
	homeDir       string
	tempDir       string
	stamp         string
	runID         string

	materializer *materialize.Materializer
	resolver     *engine.Resolver
	runner       *runner.Runner
	recorder     Recorder
	publisher    Publisher
	now          func() time.Time
	logger       *slog.Logger
}

// New prepares a tool for one execution. configuration is the host-supplied flat
// mapping; list values are joined with single spaces.
func New(cfg config.Config, configuration map[string]any, opts Options) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := opts.Commander
	if cmd == nil {
		cmd = procexec.Exec{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m, err := materialize.New(cfg.GitCmd, cfg.WorkflowsBaseDir, cmd, logger)
	if err != nil {
		return nil, err
	}
	r, err := runner.New(cfg.DockerCmd, cfg.MaxRetries, cmd, logger,
		runner.WithRetryDelay(cfg.RetryDelay),
		runner.WithOutput(opts.Stdout, opts.Stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	homeDir := opts.HomeDir
	if homeDir == "" {
		if homeDir, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("%w: resolve home directory: %w", domain.ErrConfiguration, err)
		}
	}

	conf := NormalizeConfig(configuration)
	configDir := conf[domain.KeyConfigDir]
	if configDir == "" {
		if configDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("%w: resolve working directory: %w", domain.ErrConfiguration, err)
		}
	}

	runID := runid.New()
	return &Tool{
		cfg:           cfg,
		configuration: conf,
		configDir:     configDir,
		homeDir:       homeDir,
		tempDir:       opts.TempDir,
		stamp:         now().Format(StampLayout),
		runID:         runID,
		materializer:  m,
		resolver:      engine.NewResolver(cfg.DockerCmd, cfg.EngineImage, cfg.EngineVersion, cmd, logger),
		runner:        r,
		recorder:      opts.Recorder,
		publisher:     opts.Publisher,
		now:           now,
		logger:        logger.With("run_id", runID),
	}, nil
}

// RunID identifies this execution in the run ledger.
func (t *Tool) RunID() string {
	return t.runID
}

// Stamp is the timestamp embedded in generated output names.
func (t *Tool) Stamp() string {
	return t.stamp
}

// NormalizeConfig flattens host configuration values into strings.
func NormalizeConfig(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = flatten(v)
	}
	return out
}

func flatten(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, " ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(val)
	}
}

// layout holds every resolved location of one execution.
type layout struct {
	participant    string
	projectPath    string
	executionPath  string
	resultsDir     string
	statsDir       string
	otherDir       string
	snapshot       string
	workdirArchive string
	managed        map[domain.OutputCategory]string
	populable      []plan.NamedPath
}

// resolveLayout assigns absolute locations to every output. Populable outputs
// without a location get a generated name under the execution root.
func (t *Tool) resolveLayout(outputs map[string]string) (layout, error) {
	participant := strings.TrimSpace(t.configuration[domain.KeyParticipantID])
	if participant == "" {
		return layout{}, fmt.Errorf("%w: %s is required", domain.ErrConfiguration, domain.KeyParticipantID)
	}

	projectPath := t.configValue(domain.KeyProject, ".")
	if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(t.configDir, projectPath)
	}
	executionPath, err := filepath.Abs(t.configValue(domain.KeyExecution, "."))
	if err != nil {
		return layout{}, fmt.Errorf("%w: resolve execution path: %w", domain.ErrConfiguration, err)
	}

	l := layout{
		participant:    participant,
		projectPath:    filepath.Clean(projectPath),
		executionPath:  executionPath,
		resultsDir:     filepath.Join(executionPath, ResultsDirName),
		statsDir:       filepath.Join(executionPath, StatsDirName),
		otherDir:       filepath.Join(executionPath, OtherDirName),
		workdirArchive: filepath.Join(executionPath, WorkdirArchiveName),
		managed:        map[domain.OutputCategory]string{},
	}

	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		if !domain.IsManagedOutput(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := outputs[key]
		if p == "" {
			p = filepath.Join(executionPath, runid.Hex()+".out")
		} else if !filepath.IsAbs(p) {
			p = filepath.Join(executionPath, p)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return layout{}, fmt.Errorf("create parent of output %s: %w", key, err)
		}
		l.populable = append(l.populable, plan.NamedPath{Key: key, Path: p})
	}

	for _, cat := range domain.OutputCategories {
		policy, _ := cat.Policy()
		if policy.DefaultName == nil {
			continue
		}
		p := outputs[string(cat)]
		if p == "" {
			p = policy.DefaultName(participant, t.stamp)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(executionPath, p)
		}
		l.managed[cat] = p
	}
	l.snapshot = l.managed[domain.OutputWorkflowArchive]
	return l, nil
}

func (t *Tool) configValue(key, def string) string {
	if v, ok := t.configuration[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
