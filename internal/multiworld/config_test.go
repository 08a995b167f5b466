package multiworld

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Worlds) != 1 || !cfg.Worlds[0].Visualize {
		t.Fatalf("default worlds = %+v", cfg.Worlds)
	}
	if cfg.Settings.MaxSessionsPerClient != 20 {
		t.Fatalf("default quota = %d", cfg.Settings.MaxSessionsPerClient)
	}
	rs := cfg.RegistrySettings()
	if rs.IdleTimeout != 5*time.Second || rs.ActionCooldown != 50*time.Millisecond {
		t.Fatalf("registry settings = %+v", rs)
	}
	if cfg.BodyTimeout() != 2*time.Second {
		t.Fatalf("body timeout = %v", cfg.BodyTimeout())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.yaml")
	data := `
resources_path: /maps
worlds:
  - name: alpha
    port: 9001
    map: alpha.png
    visualize: true
  - name: beta
    map: beta.png
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResourcesPath != "/maps" {
		t.Fatalf("resources = %q", cfg.ResourcesPath)
	}
	if len(cfg.Worlds) != 2 {
		t.Fatalf("worlds = %+v", cfg.Worlds)
	}
	// beta had no port: assigned from the challenge range.
	if cfg.Worlds[1].Port != 8081 {
		t.Fatalf("beta port = %d", cfg.Worlds[1].Port)
	}
	if cfg.Worlds[1].Color != "Gray" {
		t.Fatalf("beta color = %q", cfg.Worlds[1].Color)
	}
	if w, ok := cfg.VisualizedWorld(); !ok || w.Name != "alpha" {
		t.Fatalf("visualized = %+v, %v", w, ok)
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		cfg := defaults()
		cfg.Worlds = []WorldSpec{
			{Name: "a", Port: 9001, Map: "a.png"},
			{Name: "b", Port: 9002, Map: "b.png"},
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Worlds[0].Name = "" }},
		{"duplicate name", func(c *Config) { c.Worlds[1].Name = "a" }},
		{"duplicate port", func(c *Config) { c.Worlds[1].Port = 9001 }},
		{"bad port", func(c *Config) { c.Worlds[0].Port = -1 }},
		{"missing map", func(c *Config) { c.Worlds[0].Map = "" }},
		{"two visualized", func(c *Config) {
			c.Worlds[0].Visualize = true
			c.Worlds[1].Visualize = true
		}},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted", tc.name)
		}
	}

	good := base()
	good.Worlds[0].Visualize = true
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
