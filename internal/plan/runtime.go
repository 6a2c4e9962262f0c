package plan

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SetupFileName is the engine configuration fragment written into the workdir.
const SetupFileName = "vre-wf-setup.config"

// RuntimeOptions are the engine-specific settings of a containerized run.
type RuntimeOptions struct {
	UID      int
	GID      int
	Timezone string
	HomeDir  string
	// EngineHome is version-specific so engine versions never share cached assets.
	EngineHome string
	MaxCPUs    int
	// WorkdirMount re-mounts the workdir into task containers (old engines only).
	WorkdirMount bool
	Unconfined   bool
}

// User renders the uid:gid mapping of the invoking host user.
func (o RuntimeOptions) User() string {
	return strconv.Itoa(o.UID) + ":" + strconv.Itoa(o.GID)
}

// ReadTimezone returns the first line of tzFile, or fallback when it is unreadable.
func ReadTimezone(tzFile, fallback string) string {
	f, err := os.Open(tzFile)
	if err != nil {
		return fallback
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		if tz := strings.TrimSpace(sc.Text()); tz != "" {
			return tz
		}
	}
	return fallback
}

// EngineHome returns the engine home directory of version below homeDir.
func EngineHome(homeDir, version string) string {
	return filepath.Join(homeDir, "NXF_HOMES", version, ".nextflow")
}

// WriteSetup writes the engine configuration fragment into workDir and includes
// it from the package declaration file of workflowDir.
func WriteSetup(workDir, workflowDir string, opts RuntimeOptions) (string, error) {
	setupPath := filepath.Join(workDir, SetupFileName)

	runOptions := []string{"-u", opts.User(), "-e", "HOME=" + opts.HomeDir, "-e", "TZ=" + opts.Timezone}
	if opts.WorkdirMount {
		runOptions = append(runOptions, "-v", fmt.Sprintf("%[1]s:%[1]s:rw,rprivate,z", workDir))
	}
	if opts.Unconfined {
		runOptions = append(runOptions, "--security-opt", "seccomp=unconfined")
	}

	settings := [][2]string{
		{"docker.enabled", "true"},
		{"executor.$local.cpus", strconv.Itoa(opts.MaxCPUs)},
		{"docker.runOptions", strings.Join(runOptions, " ")},
	}
	var b strings.Builder
	for _, kv := range settings {
		val := kv[1]
		if strings.Contains(val, " ") {
			val = `"` + val + `"`
		}
		fmt.Fprintf(&b, "%s = %s\n", kv[0], val)
	}
	if err := os.WriteFile(setupPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write engine setup: %w", err)
	}

	decl, err := os.OpenFile(filepath.Join(workflowDir, "nextflow.config"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open workflow config: %w", err)
	}
	if _, err := fmt.Fprintf(decl, "\nincludeConfig %q\n", setupPath); err != nil {
		_ = decl.Close()
		return "", fmt.Errorf("include engine setup: %w", err)
	}
	if err := decl.Close(); err != nil {
		return "", fmt.Errorf("include engine setup: %w", err)
	}
	return setupPath, nil
}
