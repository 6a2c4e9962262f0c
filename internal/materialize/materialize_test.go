package materialize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
	"github.com/animus-labs/wfrunner/internal/platform/procexec/procexectest"
)

// cloneCreatesDir mimics git clone by creating the target directory.
func cloneCreatesDir(cmd procexec.Command) error {
	target := cmd.Args[len(cmd.Args)-1]
	if err := os.MkdirAll(filepath.Join(target, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(target, "main.nf"), []byte("workflow {}"), 0o644)
}

func newMaterializer(t *testing.T, fake *procexectest.Fake) (*Materializer, string) {
	t.Helper()
	base := t.TempDir()
	m, err := New("git", base, fake, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return m, base
}

func TestMaterializeFetchesOnce(t *testing.T) {
	fake := procexectest.New().On("clone", procexectest.Response{Do: cloneCreatesDir})
	m, base := newMaterializer(t, fake)
	ctx := context.Background()

	first, err := m.Materialize(ctx, "https://example.org/wf.git", "v1.2")
	if err != nil {
		t.Fatalf("Materialize() err=%v", err)
	}
	want := domain.NewCacheKey("https://example.org/wf.git", "v1.2").Dir(base)
	if first != want {
		t.Fatalf("Materialize()=%q, want %q", first, want)
	}
	if _, err := os.Stat(filepath.Join(first, "main.nf")); err != nil {
		t.Fatalf("expected checkout content: %v", err)
	}

	callsAfterFirst := len(fake.Calls)
	second, err := m.Materialize(ctx, "https://example.org/wf.git", "v1.2")
	if err != nil {
		t.Fatalf("second Materialize() err=%v", err)
	}
	if second != first {
		t.Fatalf("second path %q != %q", second, first)
	}
	if len(fake.Calls) != callsAfterFirst {
		t.Fatalf("expected no VCS calls on cache hit, got %d more", len(fake.Calls)-callsAfterFirst)
	}
	if got := len(fake.CallsTo("clone")); got != 1 {
		t.Fatalf("expected one clone, got %d", got)
	}
}

func TestMaterializeCommandSequence(t *testing.T) {
	fake := procexectest.New().On("clone", procexectest.Response{Do: cloneCreatesDir})
	m, _ := newMaterializer(t, fake)
	if _, err := m.Materialize(context.Background(), "https://example.org/wf.git", "abc123"); err != nil {
		t.Fatalf("Materialize() err=%v", err)
	}
	if len(fake.Calls) != 3 {
		t.Fatalf("expected 3 git calls, got %d", len(fake.Calls))
	}
	clone := fake.Calls[0]
	if !procexectest.HasArg(clone, "-n") || !procexectest.HasArg(clone, "--recurse-submodules") {
		t.Fatalf("clone must skip checkout and recurse submodules: %s", procexectest.Line(clone))
	}
	if got := procexectest.Line(fake.Calls[1]); got != "checkout abc123" {
		t.Fatalf("checkout call=%q", got)
	}
	if fake.Calls[1].Dir != clone.Args[len(clone.Args)-1] {
		t.Fatalf("checkout must run inside the clone")
	}
	if got := procexectest.Line(fake.Calls[2]); got != "submodule update --init" {
		t.Fatalf("submodule call=%q", got)
	}
}

func TestMaterializeFailureLeavesNoCacheEntry(t *testing.T) {
	fake := procexectest.New().
		On("clone", procexectest.Response{Do: cloneCreatesDir}).
		On("checkout",
			procexectest.Response{ExitCode: 1, Stderr: "error: pathspec 'nope' did not match"},
			procexectest.Response{},
		)
	m, base := newMaterializer(t, fake)

	_, err := m.Materialize(context.Background(), "https://example.org/wf.git", "nope")
	if !errors.Is(err, domain.ErrMaterialization) {
		t.Fatalf("expected ErrMaterialization, got %v", err)
	}
	if !strings.Contains(err.Error(), "pathspec 'nope'") {
		t.Fatalf("expected captured stderr in error, got %v", err)
	}
	key := domain.NewCacheKey("https://example.org/wf.git", "nope")
	if _, statErr := os.Stat(key.Dir(base)); !os.IsNotExist(statErr) {
		t.Fatalf("expected no cache entry after failure, stat err=%v", statErr)
	}
	entries, _ := os.ReadDir(key.Parent(base))
	if len(entries) != 0 {
		t.Fatalf("expected staging dir removed, found %d entries", len(entries))
	}

	// A retry after the failure must fetch again instead of hitting a false cache entry.
	if _, err := m.Materialize(context.Background(), "https://example.org/wf.git", "nope"); err != nil {
		t.Fatalf("retry Materialize() err=%v", err)
	}
}

func TestMaterializeRequiresCoordinates(t *testing.T) {
	m, _ := newMaterializer(t, procexectest.New())
	if _, err := m.Materialize(context.Background(), "", "v1"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestIdentify(t *testing.T) {
	fake := procexectest.New().
		On("remote", procexectest.Response{Stdout: "https://example.org/wf.git\n"}).
		On("rev-parse", procexectest.Response{Stdout: "0123abcd\n"}).
		On("status", procexectest.Response{Stdout: " M main.nf\n"})
	m, _ := newMaterializer(t, fake)

	id := m.Identify(context.Background(), "/checkout")
	if id.RemoteURI != "https://example.org/wf.git" || id.Revision != "0123abcd" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !id.Tainted || !strings.Contains(id.TaintReport, "main.nf") {
		t.Fatalf("expected taint report, got %+v", id)
	}
	for _, c := range fake.Calls {
		if c.Dir != "/checkout" {
			t.Fatalf("probe %q ran outside the checkout", procexectest.Line(c))
		}
	}
}

func TestIdentifyIsBestEffort(t *testing.T) {
	fake := procexectest.New().
		On("remote", procexectest.Response{ExitCode: 2, Stderr: "error: No such remote 'origin'"}).
		On("rev-parse", procexectest.Response{Stdout: "0123abcd\n"}).
		On("status", procexectest.Response{})
	m, _ := newMaterializer(t, fake)

	id := m.Identify(context.Background(), "/checkout")
	if id.RemoteURI != "" {
		t.Fatalf("expected empty remote, got %q", id.RemoteURI)
	}
	if id.Revision != "0123abcd" {
		t.Fatalf("expected revision despite remote failure, got %q", id.Revision)
	}
	if id.Tainted {
		t.Fatalf("clean status must not taint")
	}
}
