package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakerid", "config.yaml")

	cfg, err := LoadConfigWithPath("speakerid", path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
	if len(cfg.ListContexts()) != 0 {
		t.Errorf("new config has contexts: %v", cfg.ListContexts())
	}
}

func TestConfigContexts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfigWithPath("speakerid", path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.AddContext("lab", &Context{BaseURL: "http://lab:5000", Timeout: 10}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddContext("dev", &Context{BaseURL: "http://localhost:5000", Archive: "s3://clips/dev"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("lab"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("missing"); err == nil {
		t.Error("UseContext(missing) should fail")
	}

	reloaded, err := LoadConfigWithPath("speakerid", path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.ListContexts(); len(got) != 2 || got[0] != "dev" || got[1] != "lab" {
		t.Errorf("ListContexts() = %v", got)
	}
	ctx, err := reloaded.ResolveContext("")
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name != "lab" || ctx.BaseURL != "http://lab:5000" || ctx.Timeout != 10 {
		t.Errorf("current context = %+v", ctx)
	}
	dev, err := reloaded.ResolveContext("dev")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Archive != "s3://clips/dev" {
		t.Errorf("dev.Archive = %q", dev.Archive)
	}

	if err := reloaded.DeleteContext("lab"); err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after deleting it", reloaded.CurrentContext)
	}
	ctx, err = reloaded.ResolveContext("")
	if err != nil || ctx.BaseURL != "" {
		t.Errorf("ResolveContext with no current = %+v, %v", ctx, err)
	}
}

func TestContextValidate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		ok   bool
	}{
		{"empty", Context{}, true},
		{"http", Context{BaseURL: "http://localhost:5000"}, true},
		{"https with archive", Context{BaseURL: "https://voice.example.com", Archive: "gs://clips/prod"}, true},
		{"local archive", Context{Archive: "/var/lib/speakerid"}, true},
		{"no scheme", Context{BaseURL: "localhost:5000"}, false},
		{"ftp", Context{BaseURL: "ftp://host"}, false},
		{"negative timeout", Context{Timeout: -1}, false},
		{"bad archive", Context{Archive: "azure://clips"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLoadRequestExpandsEnv(t *testing.T) {
	t.Setenv("CLIP_DIR", "/data/clips")
	path := filepath.Join(t.TempDir(), "john.yaml")
	os.WriteFile(path, []byte("user: john\nclips:\n  - ${CLIP_DIR}/1.wav\n"), 0644)

	var m struct {
		User  string   `yaml:"user"`
		Clips []string `yaml:"clips"`
	}
	if err := LoadRequest(path, &m); err != nil {
		t.Fatal(err)
	}
	if m.User != "john" || len(m.Clips) != 1 || m.Clips[0] != "/data/clips/1.wav" {
		t.Errorf("manifest = %+v", m)
	}
}
