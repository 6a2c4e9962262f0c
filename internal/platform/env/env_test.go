package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestString_Default(t *testing.T) {
	got := String("WFRUNNER_TEST_STRING_DOES_NOT_EXIST", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestString_BlankCountsAsUnset(t *testing.T) {
	t.Setenv("WFRUNNER_TEST_STRING_BLANK", "   ")
	got := String("WFRUNNER_TEST_STRING_BLANK", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestString_Override(t *testing.T) {
	t.Setenv("WFRUNNER_TEST_STRING", "value")
	got := String("WFRUNNER_TEST_STRING", "fallback")
	if got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("WFRUNNER_TEST_DURATION_DOES_NOT_EXIST", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration()=%v err=%v, want 5s", got, err)
	}
	t.Setenv("WFRUNNER_TEST_DURATION", "250ms")
	got, err = Duration("WFRUNNER_TEST_DURATION", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v err=%v, want 250ms", got, err)
	}
	t.Setenv("WFRUNNER_TEST_DURATION", "not-a-duration")
	if _, err := Duration("WFRUNNER_TEST_DURATION", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("WFRUNNER_TEST_BOOL", "false")
	got, err := Bool("WFRUNNER_TEST_BOOL", true)
	if err != nil || got != false {
		t.Fatalf("Bool()=%v err=%v, want false", got, err)
	}
	t.Setenv("WFRUNNER_TEST_BOOL", "nope")
	if _, err := Bool("WFRUNNER_TEST_BOOL", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("WFRUNNER_TEST_INT_DOES_NOT_EXIST", 42)
	if err != nil || got != 42 {
		t.Fatalf("Int()=%v err=%v, want 42", got, err)
	}
	t.Setenv("WFRUNNER_TEST_INT", "7")
	got, err = Int("WFRUNNER_TEST_INT", 42)
	if err != nil || got != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", got, err)
	}
	t.Setenv("WFRUNNER_TEST_INT", "seven")
	if _, err := Int("WFRUNNER_TEST_INT", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandPath("~/WF-checkouts")
	if err != nil {
		t.Fatalf("ExpandPath() err=%v", err)
	}
	if want := filepath.Join(home, "WF-checkouts"); got != want {
		t.Fatalf("ExpandPath()=%q, want %q", got, want)
	}
	rel, err := ExpandPath("relative/dir")
	if err != nil {
		t.Fatalf("ExpandPath() err=%v", err)
	}
	if !filepath.IsAbs(rel) {
		t.Fatalf("ExpandPath()=%q, want absolute", rel)
	}
}

func TestPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("WFRUNNER_TEST_PATH", "~/checkouts")
	got, err := Path("WFRUNNER_TEST_PATH", "unused")
	if err != nil {
		t.Fatalf("Path() err=%v", err)
	}
	if want := filepath.Join(home, "checkouts"); got != want {
		t.Fatalf("Path()=%q, want %q", got, want)
	}
	def, err := Path("WFRUNNER_TEST_PATH_DOES_NOT_EXIST", "/srv/wf")
	if err != nil || def != "/srv/wf" {
		t.Fatalf("Path()=%q err=%v, want /srv/wf", def, err)
	}
}
