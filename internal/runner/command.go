package runner

import (
	"strconv"

	"github.com/animus-labs/wfrunner/internal/plan"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
)

// DockerSocket is shared with the engine container so it can launch task containers.
const DockerSocket = "/var/run/docker.sock"

// ResumeFlag makes the engine skip steps completed by a previous attempt.
const ResumeFlag = "-resume"

// EngineSpec selects the engine image and workflow profile of a run.
type EngineSpec struct {
	Image   string
	Profile string
}

// Commands assembles the initial and the resume invocation of a plan.
func (r *Runner) Commands(p plan.ExecutionPlan, engine EngineSpec) (procexec.Command, procexec.Command) {
	opts := p.Runtime
	args := []string{
		"run", "--rm",
		"-e", "USER",
		"-e", "NXF_DEBUG",
		"-e", "TZ=" + opts.Timezone,
		"-e", "HOME=" + opts.HomeDir,
		"-e", "NXF_HOME=" + opts.EngineHome,
		"-e", "NXF_USRMAP=" + strconv.Itoa(opts.UID),
		"-v", DockerSocket + ":" + DockerSocket + ":rw,rprivate,z",
	}
	for _, m := range p.Mounts {
		args = append(args, "-v", m.VolumeArg())
	}
	args = append(args,
		"-w", p.WorkDir,
		"--",
		engine.Image,
		"nextflow", "run", p.WorkflowDir,
	)
	if engine.Profile != "" {
		args = append(args, "-profile", engine.Profile)
	}

	resumeArgs := append(append([]string{}, args...), ResumeFlag)
	paramsFlags := []string{"-params-file", p.ParamsFile}
	args = append(args, paramsFlags...)
	resumeArgs = append(resumeArgs, paramsFlags...)

	base := procexec.Command{Name: r.docker, Args: args, Stdout: r.stdout, Stderr: r.stderr}
	resume := base
	resume.Args = resumeArgs
	return base, resume
}
