package catalog

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pocketlm/pkg/types"
)

func TestScanDir_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"c.task",
		"not-model.txt",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("xx"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}
	for _, m := range models {
		if !m.Preinstalled() {
			t.Fatalf("expected preinstalled model: %+v", m)
		}
		if m.SizeBytes != 2 {
			t.Fatalf("size not recorded: %+v", m)
		}
	}
}

func TestScanDir_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "pocketlm-catalog-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := ScanDir(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].Name != "x" || models[0].Extension != ".gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New([]types.Model{{Name: "a", URL: "http://x/a.gguf"}, {Name: "a", URL: "http://x/b.gguf"}}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if _, err := New([]types.Model{{Name: "a"}}); err == nil {
		t.Fatalf("expected missing location error")
	}
	if _, err := New([]types.Model{{Name: "a", URL: "u", Path: "p"}}); err == nil {
		t.Fatalf("expected url+path error")
	}
	c, err := New([]types.Model{{Name: "org/m", URL: "https://h/m.task"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m, ok := c.Get("org/m")
	if !ok || m.Extension != ".task" {
		t.Fatalf("extension not derived: %+v", m)
	}
}

func TestLoadAndDefault(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "models.toml")
	body := "[[models]]\nname=\"m1\"\nurl=\"https://h/m1.gguf\"\nsize_bytes=100\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m, ok := c.Get("m1"); !ok || m.SizeBytes != 100 {
		t.Fatalf("unexpected: %+v", c.List())
	}

	def, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if len(def.List()) == 0 {
		t.Fatalf("default catalog is empty")
	}

	merged, err := def.With([]types.Model{{Name: "local", Path: "/x/local.gguf"}, def.List()[0]})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
	if len(merged.List()) != len(def.List())+1 {
		t.Fatalf("expected one added model, got %d", len(merged.List()))
	}
	// returned slice is a copy
	out := merged.List()
	out[0].Name = "mutated"
	if merged.List()[0].Name == "mutated" {
		t.Fatalf("catalog mutated via returned slice")
	}
}
