package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadTimezone(t *testing.T) {
	tz := filepath.Join(t.TempDir(), "timezone")
	if err := os.WriteFile(tz, []byte("America/New_York\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := ReadTimezone(tz, "Europe/Madrid"); got != "America/New_York" {
		t.Fatalf("ReadTimezone()=%q", got)
	}
	if got := ReadTimezone(filepath.Join(t.TempDir(), "missing"), "Europe/Madrid"); got != "Europe/Madrid" {
		t.Fatalf("ReadTimezone()=%q, want fallback", got)
	}
}

func TestEngineHomeIsVersionSpecific(t *testing.T) {
	a := EngineHome("/home/u", "19.04.1")
	b := EngineHome("/home/u", "21.04.0")
	if a == b {
		t.Fatalf("engine homes collide: %s", a)
	}
	if a != "/home/u/NXF_HOMES/19.04.1/.nextflow" {
		t.Fatalf("EngineHome()=%q", a)
	}
}

func TestWriteSetup(t *testing.T) {
	work := t.TempDir()
	workflow := t.TempDir()
	if err := os.WriteFile(filepath.Join(workflow, "nextflow.config"), []byte("params.x = 1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts := RuntimeOptions{
		UID:          1000,
		GID:          1000,
		Timezone:     "Europe/Madrid",
		HomeDir:      "/home/u",
		MaxCPUs:      4,
		WorkdirMount: true,
		Unconfined:   true,
	}
	setup, err := WriteSetup(work, workflow, opts)
	if err != nil {
		t.Fatalf("WriteSetup() err=%v", err)
	}
	body, err := os.ReadFile(setup)
	if err != nil {
		t.Fatalf("read setup: %v", err)
	}
	text := string(body)
	for _, want := range []string{
		"docker.enabled = true",
		"executor.$local.cpus = 4",
		`docker.runOptions = "-u 1000:1000 -e HOME=/home/u -e TZ=Europe/Madrid -v ` + work + ":" + work + `:rw,rprivate,z --security-opt seccomp=unconfined"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("setup missing %q:\n%s", want, text)
		}
	}
	decl, err := os.ReadFile(filepath.Join(workflow, "nextflow.config"))
	if err != nil {
		t.Fatalf("read declaration: %v", err)
	}
	if !strings.HasPrefix(string(decl), "params.x = 1") || !strings.Contains(string(decl), `includeConfig "`+setup+`"`) {
		t.Fatalf("declaration not extended:\n%s", decl)
	}
}
