package x11

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func stubDisplayFns(
	env map[string]string,
	detectSession func() (string, string),
	detectSocket func(string) string,
) func() {
	origEnv := getenvFn
	origSession := detectSessionX11EnvFn
	origSocket := detectDisplayFromSocketFn
	getenvFn = func(key string) string { return env[key] }
	detectSessionX11EnvFn = detectSession
	detectDisplayFromSocketFn = detectSocket
	return func() {
		getenvFn = origEnv
		detectSessionX11EnvFn = origSession
		detectDisplayFromSocketFn = origSocket
	}
}

func TestResolveDisplay_ConfigWinsOverEnv(t *testing.T) {
	restore := stubDisplayFns(
		map[string]string{"DISPLAY": ":7", "XAUTHORITY": "/tmp/xauth-env"},
		func() (string, string) { return ":99", "/tmp/should-not-be-used" },
		func(string) string { return ":88" },
	)
	defer restore()

	display, xauth, err := ResolveDisplay(":1")
	if err != nil {
		t.Fatalf("ResolveDisplay returned error: %v", err)
	}
	if display != ":1" || xauth != "/tmp/xauth-env" {
		t.Fatalf("got %q %q", display, xauth)
	}
}

func TestResolveDisplay_UsesEnv(t *testing.T) {
	restore := stubDisplayFns(
		map[string]string{"DISPLAY": ":7", "XAUTHORITY": "/tmp/xauth-env"},
		func() (string, string) { return ":99", "" },
		func(string) string { return "" },
	)
	defer restore()

	display, _, err := ResolveDisplay("")
	if err != nil || display != ":7" {
		t.Fatalf("got %q, %v", display, err)
	}
}

func TestResolveDisplay_UsesDetectedSession(t *testing.T) {
	restore := stubDisplayFns(
		map[string]string{"HOME": t.TempDir()},
		func() (string, string) { return ":5", "/tmp/xauth-detected" },
		func(string) string { return "" },
	)
	defer restore()

	display, xauth, err := ResolveDisplay("")
	if err != nil {
		t.Fatalf("ResolveDisplay returned error: %v", err)
	}
	if display != ":5" || xauth != "/tmp/xauth-detected" {
		t.Fatalf("got %q %q", display, xauth)
	}
}

func TestResolveDisplay_SocketAndHomeXAuthorityFallback(t *testing.T) {
	home := t.TempDir()
	xauth := filepath.Join(home, ".Xauthority")
	if err := os.WriteFile(xauth, []byte("cookie"), 0600); err != nil {
		t.Fatalf("write xauthority: %v", err)
	}
	restore := stubDisplayFns(
		map[string]string{"HOME": home},
		func() (string, string) { return "", "" },
		func(string) string { return ":3" },
	)
	defer restore()

	display, gotXAuth, err := ResolveDisplay("")
	if err != nil {
		t.Fatalf("ResolveDisplay returned error: %v", err)
	}
	if display != ":3" || gotXAuth != xauth {
		t.Fatalf("got %q %q, want :3 %q", display, gotXAuth, xauth)
	}
}

func TestResolveDisplay_NoDisplay(t *testing.T) {
	restore := stubDisplayFns(
		map[string]string{"HOME": t.TempDir()},
		func() (string, string) { return "", "" },
		func(string) string { return "" },
	)
	defer restore()

	_, _, err := ResolveDisplay("")
	if !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("expected ErrNoDisplay, got %v", err)
	}
	if !strings.Contains(err.Error(), "force_single_process") {
		t.Fatalf("expected hint in error, got %v", err)
	}
}

func TestDetectDisplayFromSockets(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"X0", "X2", "not-a-display"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if got := detectDisplayFromSockets(dir); got != ":2" {
		t.Fatalf("detectDisplayFromSockets = %q, want %q", got, ":2")
	}
}

func TestParseLoginctlSessions(t *testing.T) {
	out := strings.Join([]string{
		"1 1000 george seat0",
		"2 1001 alice seat0",
		"3 1000 george seat1",
		"",
	}, "\n")
	got := parseLoginctlSessions(out, "1000")
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("parseLoginctlSessions = %v, want [1 3]", got)
	}
}

func TestReadProcEnviron(t *testing.T) {
	orig := readFileFn
	defer func() { readFileFn = orig }()
	readFileFn = func(path string) ([]byte, error) {
		if path != "/proc/42/environ" {
			return nil, os.ErrNotExist
		}
		return []byte("DISPLAY=:4\x00XAUTHORITY=/run/xauth\x00BROKEN\x00"), nil
	}

	env, err := readProcEnviron("42")
	if err != nil {
		t.Fatalf("readProcEnviron: %v", err)
	}
	if env["DISPLAY"] != ":4" || env["XAUTHORITY"] != "/run/xauth" || len(env) != 2 {
		t.Fatalf("unexpected env: %v", env)
	}
}
