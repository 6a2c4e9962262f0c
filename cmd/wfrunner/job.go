package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/wfrunner/internal/domain"
)

// Job is the host contract input of one execution.
type Job struct {
	Config        map[string]any                  `yaml:"config"`
	Inputs        map[string]string               `yaml:"inputs"`
	InputMetadata map[string]domain.InputMetadata `yaml:"input_metadata"`
	Outputs       map[string]string               `yaml:"outputs"`
}

// LoadJob reads a job file. Relative project paths resolve against the job
// file's directory unless the job names a configuration directory itself.
func LoadJob(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("%w: read job: %w", domain.ErrConfiguration, err)
	}
	var job Job
	if err := yaml.Unmarshal(b, &job); err != nil {
		return Job{}, fmt.Errorf("%w: parse job %s: %w", domain.ErrConfiguration, path, err)
	}
	if job.Config == nil {
		job.Config = map[string]any{}
	}
	if _, ok := job.Config[domain.KeyConfigDir]; !ok {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Job{}, fmt.Errorf("%w: resolve job path: %w", domain.ErrConfiguration, err)
		}
		job.Config[domain.KeyConfigDir] = filepath.Dir(abs)
	}
	return job, nil
}

// Result is what the run command reports back to the host.
type Result struct {
	RunID    string                  `json:"run_id"`
	Outputs  map[string]any          `json:"outputs"`
	Metadata []domain.OutputMetadata `json:"metadata"`
}
