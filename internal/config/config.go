// Package config loads the runner's local settings: an INI file next to the
// executable, overridden by WFRUNNER_* environment variables. The result is an
// immutable Config handed to each component constructor.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-ini/ini"

	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/platform/env"
)

const (
	DefaultEngineImage      = "nextflow/nextflow"
	DefaultEngineVersion    = "19.04.1"
	DefaultWorkflowsBaseDir = "WF-checkouts"
	DefaultMaxRetries       = 5
	DefaultMaxCPUs          = 4
	DefaultProfile          = "docker"
	DefaultDockerCmd        = "docker"
	DefaultGitCmd           = "git"
	DefaultTimezone         = "Europe/Madrid"
	DefaultTimezoneFile     = "/etc/timezone"
)

type Config struct {
	EngineImage      string
	EngineVersion    string
	MaxRetries       int
	RetryDelay       time.Duration
	MaxCPUs          int
	WorkflowsBaseDir string
	DockerCmd        string
	GitCmd           string
	TimezoneFallback string
	TimezoneFile     string
	// Source is the file the settings were read from, empty for built-in defaults.
	Source string
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		EngineImage:      DefaultEngineImage,
		EngineVersion:    DefaultEngineVersion,
		MaxRetries:       DefaultMaxRetries,
		MaxCPUs:          DefaultMaxCPUs,
		WorkflowsBaseDir: DefaultWorkflowsBaseDir,
		DockerCmd:        DefaultDockerCmd,
		GitCmd:           DefaultGitCmd,
		TimezoneFallback: DefaultTimezone,
		TimezoneFile:     DefaultTimezoneFile,
	}
}

// DefaultPath is "<executable>.ini".
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return exe + ".ini"
}

// Load reads path (DefaultPath when empty). A missing file is initialized from
// "<path>.template"; when that copy fails the template is read in place, and when
// no template exists the built-in defaults apply.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	source := resolveSource(path, logger)

	cfg := Defaults()
	if source != "" {
		file, err := ini.Load(source)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %w", domain.ErrConfiguration, source, err)
		}
		if err := cfg.applyINI(file); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", domain.ErrConfiguration, source, err)
		}
		cfg.Source = source
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	baseDir, err := env.Path("WFRUNNER_WORKFLOWS_BASEDIR", cfg.WorkflowsBaseDir)
	if err != nil {
		return Config{}, fmt.Errorf("%w: workflows basedir: %w", domain.ErrConfiguration, err)
	}
	cfg.WorkflowsBaseDir = baseDir

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return cfg, nil
}

func resolveSource(path string, logger *slog.Logger) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	template := path + ".template"
	if _, err := os.Stat(template); err != nil {
		logger.Debug("no configuration file, using defaults", "path", path)
		return ""
	}
	if err := copyFile(template, path); err != nil {
		// The installation dir may belong to another user; read the template in place.
		logger.Warn("unable to initialize configuration from template", "template", template, "path", path, "error", err)
		return template
	}
	logger.Debug("configuration initialized from template", "template", template, "path", path)
	return path
}

func (c *Config) applyINI(file *ini.File) error {
	nf := file.Section("nextflow")
	c.EngineImage = nf.Key("docker_image").MustString(c.EngineImage)
	c.EngineVersion = nf.Key("version").MustString(c.EngineVersion)
	var err error
	if c.MaxRetries, err = intKey(nf, "max-retries", c.MaxRetries); err != nil {
		return err
	}
	if c.MaxCPUs, err = intKey(nf, "max-cpus", c.MaxCPUs); err != nil {
		return err
	}
	if nf.HasKey("retry-delay") {
		if c.RetryDelay, err = nf.Key("retry-delay").Duration(); err != nil {
			return fmt.Errorf("nextflow.retry-delay: %w", err)
		}
	}

	c.WorkflowsBaseDir = file.Section("workflows").Key("basedir").MustString(c.WorkflowsBaseDir)

	defaults := file.Section("defaults")
	c.DockerCmd = defaults.Key("docker_cmd").MustString(c.DockerCmd)
	c.GitCmd = defaults.Key("git_cmd").MustString(c.GitCmd)
	c.TimezoneFallback = defaults.Key("timezone_fallback").MustString(c.TimezoneFallback)
	c.TimezoneFile = defaults.Key("timezone_file").MustString(c.TimezoneFile)
	return nil
}

func intKey(sec *ini.Section, key string, def int) (int, error) {
	if !sec.HasKey(key) {
		return def, nil
	}
	v, err := sec.Key(key).Int()
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", sec.Name(), key, err)
	}
	return v, nil
}

func (c *Config) applyEnv() error {
	c.EngineImage = env.String("WFRUNNER_ENGINE_IMAGE", c.EngineImage)
	c.EngineVersion = env.String("WFRUNNER_ENGINE_VERSION", c.EngineVersion)
	c.DockerCmd = env.String("WFRUNNER_DOCKER_CMD", c.DockerCmd)
	c.GitCmd = env.String("WFRUNNER_GIT_CMD", c.GitCmd)
	c.TimezoneFallback = env.String("WFRUNNER_TIMEZONE_FALLBACK", c.TimezoneFallback)

	var err error
	if c.MaxRetries, err = env.Int("WFRUNNER_MAX_RETRIES", c.MaxRetries); err != nil {
		return err
	}
	if c.MaxCPUs, err = env.Int("WFRUNNER_MAX_CPUS", c.MaxCPUs); err != nil {
		return err
	}
	if c.RetryDelay, err = env.Duration("WFRUNNER_RETRY_DELAY", c.RetryDelay); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.EngineImage) == "" {
		return errors.New("engine image is required")
	}
	if strings.TrimSpace(c.EngineVersion) == "" {
		return errors.New("default engine version is required")
	}
	if c.MaxRetries < 1 {
		return errors.New("max-retries must be >= 1")
	}
	if c.MaxCPUs < 1 {
		return errors.New("max-cpus must be >= 1")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry-delay must be >= 0")
	}
	if strings.TrimSpace(c.WorkflowsBaseDir) == "" {
		return errors.New("workflows basedir is required")
	}
	if strings.TrimSpace(c.DockerCmd) == "" {
		return errors.New("docker command is required")
	}
	if strings.TrimSpace(c.GitCmd) == "" {
		return errors.New("git command is required")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
