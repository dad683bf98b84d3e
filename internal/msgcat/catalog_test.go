package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	got, err := c.Render("spotlight.tournament_title", map[string]string{
		"White": "Alice", "Black": "Bob", "Tournament": "spring-open",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "Alice vs Bob (spring-open)" {
		t.Fatalf("rendered %q", got)
	}

	got, err = c.Render("reject.illegal_move", nil)
	if err != nil {
		t.Fatalf("render static key: %v", err)
	}
	if !strings.Contains(got, "not legal") {
		t.Fatalf("rendered %q", got)
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRenderMissingTemplateData(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := c.Render("terminal.resignation", map[string]string{}); err == nil {
		t.Fatal("expected error for missing template field")
	}
}

func TestOverrideDirReplacesKeys(t *testing.T) {
	dir := t.TempDir()
	override := "spotlight:\n  disabled: \"Closed for maintenance.\"\n"
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	got, err := c.Render("spotlight.disabled", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "Closed for maintenance." {
		t.Fatalf("rendered %q, want override applied", got)
	}

	// Untouched keys keep their embedded defaults.
	got, err = c.Render("draw.accepted", nil)
	if err != nil {
		t.Fatalf("render default: %v", err)
	}
	if got != "Draw agreed." {
		t.Fatalf("rendered %q", got)
	}
}

func TestOverrideDirRejectsDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	body := "draw:\n  accepted: \"ok\"\n"
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected error for duplicate override keys")
	}
}

func TestOverrideDirRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("draw:\n  accepted: 42\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected error for non-string leaf")
	}
}
