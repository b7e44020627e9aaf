package appreg

import (
	"errors"
	"reflect"
	"testing"
)

type fakeProc struct {
	exe    string
	parent int
}

type fakeTable map[int]fakeProc

func (f fakeTable) Executable(pid int) (string, error) {
	p, ok := f[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return p.exe, nil
}

func (f fakeTable) Parent(pid int) (int, error) {
	p, ok := f[pid]
	if !ok {
		return 0, errors.New("no such process")
	}
	return p.parent, nil
}

func (f fakeTable) Exists(pid int) (bool, error) {
	_, ok := f[pid]
	return ok, nil
}

func newTestRegistry(t *testing.T, procs fakeTable) *Registry {
	t.Helper()
	reg, err := NewRegistry(Options{
		Applications: []Definition{
			{ID: "org.example.browser", Aliases: []string{"org.example.browser.private"}, Executables: []string{"/usr/bin/browser"}},
			{ID: "org.example.terminal"},
		},
		SecurityChecks: true,
		Processes:      procs,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestApplication_Alias(t *testing.T) {
	canonical := New("a")
	alias := NewAlias("a.alias", canonical)

	if canonical.IsAlias() || !alias.IsAlias() {
		t.Fatalf("IsAlias mismatch")
	}
	if alias.Canonical() != canonical || canonical.Canonical() != canonical {
		t.Fatalf("Canonical mismatch")
	}
	if !alias.Same(canonical) || !canonical.Same(alias) {
		t.Fatalf("alias and canonical should be Same")
	}
	var nilApp *Application
	if nilApp.ID() != "" || nilApp.Canonical() != nil || nilApp.Same(canonical) {
		t.Fatalf("nil application should be inert")
	}
}

func TestRegistry_ResolveByProcessID(t *testing.T) {
	procs := fakeTable{
		100: {exe: "/usr/bin/browser", parent: 1},
		101: {exe: "/usr/lib/browser/renderer", parent: 100},
		200: {exe: "/usr/bin/bash", parent: 1},
		201: {exe: "/usr/bin/term-helper", parent: 200},
	}
	reg := newTestRegistry(t, procs)
	if _, err := reg.Attach("org.example.terminal", 200); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	tests := []struct {
		name string
		pid  int
		want string
	}{
		{"executable match", 100, "org.example.browser"},
		{"parent executable match", 101, "org.example.browser"},
		{"attached", 200, "org.example.terminal"},
		{"attached parent", 201, "org.example.terminal"},
		{"unknown process", 999, ""},
		{"zero pid", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.ResolveByProcessID(tt.pid).ID(); got != tt.want {
				t.Fatalf("ResolveByProcessID(%d) = %q, want %q", tt.pid, got, tt.want)
			}
		})
	}
}

func TestRegistry_AttachUnknown(t *testing.T) {
	reg := newTestRegistry(t, fakeTable{})
	_, err := reg.Attach("org.example.none", 5)
	if !errors.Is(err, ErrUnknownApplication) {
		t.Fatalf("Attach unknown: err = %v, want ErrUnknownApplication", err)
	}
	if _, err := reg.Attach("org.example.terminal", 0); err == nil {
		t.Fatalf("Attach with pid 0 should fail")
	}
}

func TestRegistry_AttachAlias(t *testing.T) {
	reg := newTestRegistry(t, fakeTable{10: {exe: "x", parent: 1}})
	app, err := reg.Attach("org.example.browser.private", 10)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !app.IsAlias() || app.Canonical().ID() != "org.example.browser" {
		t.Fatalf("expected alias of org.example.browser, got %q", app.Canonical().ID())
	}
	if got := reg.ResolveByProcessID(10); got != app {
		t.Fatalf("ResolveByProcessID returned %v, want alias", got.ID())
	}
}

func TestRegistry_ApplicationsOrder(t *testing.T) {
	reg := newTestRegistry(t, fakeTable{})
	var ids []string
	for _, app := range reg.Applications() {
		ids = append(ids, app.ID())
	}
	want := []string{"org.example.browser", "org.example.browser.private", "org.example.terminal"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("Applications = %v, want %v", ids, want)
	}
}

func TestRegistry_Prune(t *testing.T) {
	procs := fakeTable{10: {exe: "x", parent: 1}}
	reg := newTestRegistry(t, procs)
	reg.Attach("org.example.terminal", 10)
	reg.Attach("org.example.terminal", 20)
	reg.Attach("org.example.browser", 30)

	got := reg.Prune()
	if !reflect.DeepEqual(got, []int{20, 30}) {
		t.Fatalf("Prune = %v, want [20 30]", got)
	}
	if want := map[int]string{10: "org.example.terminal"}; !reflect.DeepEqual(reg.Attachments(), want) {
		t.Fatalf("Attachments = %v, want %v", reg.Attachments(), want)
	}
}

func TestRegistry_ReloadKeepsAttachments(t *testing.T) {
	reg := newTestRegistry(t, fakeTable{})
	reg.Attach("org.example.terminal", 10)
	reg.Attach("org.example.browser", 11)

	err := reg.Reload([]Definition{{ID: "org.example.terminal"}}, false)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reg.SecurityChecksEnabled() {
		t.Fatalf("security checks should be disabled after reload")
	}
	if want := map[int]string{10: "org.example.terminal"}; !reflect.DeepEqual(reg.Attachments(), want) {
		t.Fatalf("Attachments = %v, want %v", reg.Attachments(), want)
	}
	if reg.Lookup("org.example.terminal") != reg.ResolveByProcessID(10) {
		t.Fatalf("attachment should point at the reloaded application")
	}
}

func TestRegistry_ReloadKeepsUnchangedIdentities(t *testing.T) {
	reg := newTestRegistry(t, fakeTable{})
	browser := reg.Lookup("org.example.browser")
	private := reg.Lookup("org.example.browser.private")
	terminal := reg.Lookup("org.example.terminal")

	err := reg.Reload([]Definition{
		{ID: "org.example.browser", Aliases: []string{"org.example.browser.private"}},
		{ID: "org.example.terminal.alt", Aliases: []string{"org.example.terminal"}},
	}, true)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if reg.Lookup("org.example.browser") != browser {
		t.Fatalf("unchanged application was rebuilt")
	}
	if reg.Lookup("org.example.browser.private") != private {
		t.Fatalf("unchanged alias was rebuilt")
	}
	next := reg.Lookup("org.example.terminal")
	if next == terminal || !next.IsAlias() {
		t.Fatalf("application turned alias should be rebuilt as an alias")
	}
	if terminal.Same(next) {
		t.Fatalf("old terminal identity should no longer match its new canonical")
	}
}

func TestApplication_SameComparesCanonicalIDs(t *testing.T) {
	before := New("org.example.app")
	after := New("org.example.app")
	alias := NewAlias("org.example.app.alias", after)

	tests := []struct {
		name string
		a, b *Application
		want bool
	}{
		{"rebuilt identity", before, after, true},
		{"alias of rebuilt identity", before, alias, true},
		{"different id", before, New("org.example.other"), false},
		{"nil", before, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Same(tt.b); got != tt.want {
				t.Fatalf("Same = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_DuplicateIDs(t *testing.T) {
	_, err := NewRegistry(Options{
		Applications: []Definition{{ID: "a", Aliases: []string{"b"}}, {ID: "b"}},
		Processes:    fakeTable{},
	})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
