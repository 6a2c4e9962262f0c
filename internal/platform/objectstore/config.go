package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/wfrunner/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether archive publishing was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads WFRUNNER_MINIO_*. An unset endpoint disables publishing.
func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("WFRUNNER_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("WFRUNNER_MINIO_ENDPOINT", ""),
		AccessKey: env.String("WFRUNNER_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("WFRUNNER_MINIO_SECRET_KEY", ""),
		Region:    env.String("WFRUNNER_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("WFRUNNER_MINIO_BUCKET", "workflow-runs"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
