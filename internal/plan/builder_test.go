package plan

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/animus-labs/wfrunner/internal/domain"
)

type fixture struct {
	project   string
	execution string
	workflow  string
	work      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		project:   filepath.Join(root, "project"),
		execution: filepath.Join(root, "execution"),
		workflow:  filepath.Join(root, "workflow"),
		work:      filepath.Join(root, "work"),
	}
	for _, d := range []string{f.project, f.execution, f.workflow, f.work} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return f
}

func (f fixture) input() Input {
	return Input{
		Config:        map[string]string{},
		ProjectPath:   f.project,
		ExecutionPath: f.execution,
		WorkflowDir:   f.workflow,
		WorkDir:       f.work,
	}
}

func mountsFor(plan ExecutionPlan, p string) []domain.MountSpec {
	var out []domain.MountSpec
	for _, m := range plan.Mounts {
		if m.HostPath == p {
			out = append(out, m)
		}
	}
	return out
}

func TestBuildFoldsOutputsUnderExecutionRoot(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	nested := filepath.Join(f.execution, "b", "out.json")
	in.Outputs = []NamedPath{{Key: "report", Path: nested}}

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	for _, m := range plan.Mounts {
		if m.HostPath == nested || m.HostPath == filepath.Join(f.execution, "b")+"/" {
			t.Fatalf("output under execution root must not get its own mount: %+v", m)
		}
	}
	if got := plan.Document["report"]; got != nested {
		t.Fatalf("report param=%v, want %s", got, nested)
	}
}

func TestBuildMountsUnrelatedOutputOnce(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	elsewhere := filepath.Join(t.TempDir(), "x", "out.json")
	in.Outputs = []NamedPath{{Key: "report", Path: elsewhere}}

	before := len(baseMounts(in))
	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if len(plan.Mounts) != before+1 {
		t.Fatalf("expected exactly one extra mount, got %d -> %d", before, len(plan.Mounts))
	}
	ms := mountsFor(plan, elsewhere)
	if len(ms) != 1 || ms[0].Access != domain.AccessReadWrite {
		t.Fatalf("expected one rw mount for %s, got %+v", elsewhere, ms)
	}
	info, err := os.Stat(elsewhere)
	if err != nil || info.IsDir() {
		t.Fatalf("expected pre-created empty file, info=%v err=%v", info, err)
	}
}

func TestBuildCreatesDirectoryOutputs(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	dir := filepath.Join(t.TempDir(), "stats") + "/"
	in.Outputs = []NamedPath{{Key: "statsdir", Path: dir}}

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected created directory, info=%v err=%v", info, err)
	}
	if len(mountsFor(plan, dir)) != 1 {
		t.Fatalf("expected directory mount %s in %+v", dir, plan.Mounts)
	}
}

func TestBuildNormalizesInputSeparators(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	file := filepath.Join(f.project, "data.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir := filepath.Join(f.project, "ref")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	in.Inputs = []NamedPath{
		{Key: "input", Path: file + "/"},
		{Key: "public_ref_dir", Path: dir},
	}

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if ms := mountsFor(plan, file); len(ms) != 1 || ms[0].Access != domain.AccessReadOnly {
		t.Fatalf("expected ro file mount without trailing separator, got %+v", plan.Mounts)
	}
	if ms := mountsFor(plan, dir+"/"); len(ms) != 1 || ms[0].Access != domain.AccessReadOnly {
		t.Fatalf("expected ro dir mount with trailing separator, got %+v", plan.Mounts)
	}
	if plan.Document["public_ref_dir"] != dir+"/" {
		t.Fatalf("public_ref_dir=%v", plan.Document["public_ref_dir"])
	}
}

func TestBuildSkipsReservedKeysAndWritesDocument(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.Config = map[string]string{
		domain.KeyRepoURI:    "https://example.org/wf.git",
		domain.KeyRepoTag:    "v1",
		domain.KeyExecution:  f.execution,
		"participant_id":     "alice",
		"challenges_ids":     "c1 c2",
		"community.settings": "x",
	}

	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if _, ok := plan.Document[domain.KeyRepoURI]; ok {
		t.Fatalf("reserved key leaked into parameters: %v", plan.Document)
	}
	if _, ok := plan.Document[domain.KeyExecution]; ok {
		t.Fatalf("reserved key leaked into parameters: %v", plan.Document)
	}
	blob, err := os.ReadFile(plan.ParamsFile)
	if err != nil {
		t.Fatalf("read params file: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(blob, &onDisk); err != nil {
		t.Fatalf("params file is not JSON: %v", err)
	}
	want := map[string]any{
		"participant_id": "alice",
		"challenges_ids": "c1 c2",
		"community":      map[string]any{"settings": "x"},
	}
	if !reflect.DeepEqual(onDisk, want) {
		t.Fatalf("params file=%v, want %v", onDisk, want)
	}
}

func TestBuildProjectMountOnlyWhenDistinct(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	plan, err := Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if len(mountsFor(plan, f.project+"/")) != 1 {
		t.Fatalf("expected project mount, got %+v", plan.Mounts)
	}

	in.ProjectPath = f.execution
	plan, err = Build(in)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if ms := mountsFor(plan, f.execution+"/"); len(ms) != 1 || ms[0].Access != domain.AccessReadWrite {
		t.Fatalf("expected a single rw execution mount, got %+v", plan.Mounts)
	}
}

func TestResolveInputsReportsAllMissing(t *testing.T) {
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "present.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ResolveInputs(project, map[string]string{
		"input":   "present.txt",
		"gold":    "missing-a",
		"reports": "/nonexistent/missing-b",
	}, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "gold reports") {
		t.Fatalf("unexpected message %q", msg)
	}

	ok, err := ResolveInputs(project, map[string]string{"input": "present.txt"}, nil)
	if err != nil {
		t.Fatalf("ResolveInputs() err=%v", err)
	}
	if ok[0].Path != filepath.Join(project, "present.txt") {
		t.Fatalf("resolved=%+v", ok)
	}
}
