// Package multiworld boots and owns the set of worlds one process serves.
package multiworld

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gridquest.io/internal/game/registry"
)

type Config struct {
	ResourcesPath string      `yaml:"resources_path"`
	OpsAddr       string      `yaml:"ops_addr"`
	Settings      Settings    `yaml:"settings"`
	Worlds        []WorldSpec `yaml:"worlds"`
}

// WorldSpec describes one world: its display name and color, the port its
// connection handler listens on, the raster map file it loads, and whether it
// carries the visualization sink.
type WorldSpec struct {
	Name      string `yaml:"name"`
	Color     string `yaml:"color"`
	Port      int    `yaml:"port"`
	Map       string `yaml:"map"`
	Visualize bool   `yaml:"visualize"`
}

type Settings struct {
	MaxSessionsPerClient int `yaml:"max_sessions_per_client"`
	IdleTimeoutMs        int `yaml:"idle_timeout_ms"`
	ActionCooldownMs     int `yaml:"action_cooldown_ms"`
	SweepIntervalMs      int `yaml:"sweep_interval_ms"`
	BodyTimeoutMs        int `yaml:"body_timeout_ms"`
}

// challengePortStart seeds port assignment for world entries that omit one.
const challengePortStart = 8081

func defaults() Config {
	return Config{
		ResourcesPath: "./configs/maps",
		OpsAddr:       ":8079",
		Settings: Settings{
			MaxSessionsPerClient: 20,
			IdleTimeoutMs:        5000,
			ActionCooldownMs:     50,
			SweepIntervalMs:      1000,
			BodyTimeoutMs:        2000,
		},
		Worlds: []WorldSpec{
			{Name: "main", Color: "Green", Port: 8080, Map: "main.png", Visualize: true},
		},
	}
}

// Load reads a worlds config. An empty path yields the single-world defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	def := defaults()
	if strings.TrimSpace(c.ResourcesPath) == "" {
		c.ResourcesPath = def.ResourcesPath
	}
	if strings.TrimSpace(c.OpsAddr) == "" {
		c.OpsAddr = def.OpsAddr
	}
	if c.Settings.MaxSessionsPerClient <= 0 {
		c.Settings.MaxSessionsPerClient = def.Settings.MaxSessionsPerClient
	}
	if c.Settings.IdleTimeoutMs <= 0 {
		c.Settings.IdleTimeoutMs = def.Settings.IdleTimeoutMs
	}
	if c.Settings.ActionCooldownMs < 0 {
		c.Settings.ActionCooldownMs = def.Settings.ActionCooldownMs
	}
	if c.Settings.SweepIntervalMs <= 0 {
		c.Settings.SweepIntervalMs = def.Settings.SweepIntervalMs
	}
	if c.Settings.BodyTimeoutMs <= 0 {
		c.Settings.BodyTimeoutMs = def.Settings.BodyTimeoutMs
	}
	if len(c.Worlds) == 0 {
		c.Worlds = def.Worlds
	}
	nextPort := challengePortStart
	for i := range c.Worlds {
		if strings.TrimSpace(c.Worlds[i].Color) == "" {
			c.Worlds[i].Color = "Gray"
		}
		if c.Worlds[i].Port == 0 {
			c.Worlds[i].Port = nextPort
			nextPort++
		}
	}
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	names := map[string]bool{}
	ports := map[int]bool{}
	visualized := 0
	for _, w := range c.Worlds {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("world name must not be empty")
		}
		if names[w.Name] {
			return fmt.Errorf("duplicate world name: %s", w.Name)
		}
		names[w.Name] = true
		if w.Port <= 0 || w.Port > 65535 {
			return fmt.Errorf("world %s port %d out of range", w.Name, w.Port)
		}
		if ports[w.Port] {
			return fmt.Errorf("duplicate world port: %d", w.Port)
		}
		ports[w.Port] = true
		if strings.TrimSpace(w.Map) == "" {
			return fmt.Errorf("world %s must name a map file", w.Name)
		}
		if w.Visualize {
			visualized++
		}
	}
	if visualized > 1 {
		return fmt.Errorf("at most one world may set visualize: true, got %d", visualized)
	}
	return nil
}

// RegistrySettings converts the millisecond knobs into registry durations.
func (c Config) RegistrySettings() registry.Settings {
	return registry.Settings{
		MaxSessionsPerClient: c.Settings.MaxSessionsPerClient,
		IdleTimeout:          time.Duration(c.Settings.IdleTimeoutMs) * time.Millisecond,
		ActionCooldown:       time.Duration(c.Settings.ActionCooldownMs) * time.Millisecond,
		SweepInterval:        time.Duration(c.Settings.SweepIntervalMs) * time.Millisecond,
	}
}

func (c Config) BodyTimeout() time.Duration {
	return time.Duration(c.Settings.BodyTimeoutMs) * time.Millisecond
}

func (c Config) VisualizedWorld() (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.Visualize {
			return w, true
		}
	}
	return WorldSpec{}, false
}
