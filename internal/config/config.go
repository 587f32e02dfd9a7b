package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Panel   PanelConfig   `yaml:"panel"`
	Match   MatchConfig   `yaml:"match"`
	Query   QueryConfig   `yaml:"query"`
	RCON    RCONConfig    `yaml:"rcon"`
}

type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// PanelConfig points at the panel client API for the managed server.
type PanelConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	ServerID       string `yaml:"server_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MatchConfig holds the match lifecycle tuning and the map catalog.
// Dir is the directory shared with the provisioning script, where
// state.json and job.json live.
type MatchConfig struct {
	Dir                 string   `yaml:"dir"`
	ServerAddress       string   `yaml:"server_address"`
	Maps                []string `yaml:"maps"`
	CooldownSeconds     int      `yaml:"cooldown_seconds"`
	PowerTimeoutSeconds int      `yaml:"power_timeout_seconds"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
}

// QueryConfig optionally enables live A2S info on /match status.
type QueryConfig struct {
	Address string `yaml:"address"`
}

// RCONConfig optionally routes /match console over direct RCON instead of
// the panel's command endpoint.
type RCONConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// defaultMaps is the shipped catalog; keep in sync with /maps/*.zip on the
// server volume.
var defaultMaps = []string{
	"Duality_2p",
	"Oceanborn_2p",
	"OutlawsRidge_2p",
	"FusionDelta_2p",
	"Berlingrad_v2_2p",
	"4Mountains_4p",
	"4Rivers_4p",
	"CaelumInsula_KotH_4p",
	"EssentialIsles_6p",
	"Quicksand_6p",
}

// Load reads and validates the config file. Environment variables
// referenced as ${VAR_NAME} in string values are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Match.Maps) == 0 {
		c.Match.Maps = defaultMaps
	}
	if c.Match.CooldownSeconds == 0 {
		c.Match.CooldownSeconds = 10
	}
	if c.Match.PowerTimeoutSeconds == 0 {
		c.Match.PowerTimeoutSeconds = 120
	}
	if c.Match.PollIntervalSeconds == 0 {
		c.Match.PollIntervalSeconds = 2
	}
	if c.Panel.TimeoutSeconds == 0 {
		c.Panel.TimeoutSeconds = 15
	}
	c.Panel.BaseURL = strings.TrimRight(c.Panel.BaseURL, "/")
}

func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if c.Panel.BaseURL == "" {
		return fmt.Errorf("panel.base_url is required")
	}
	if c.Panel.Token == "" {
		return fmt.Errorf("panel.token is required")
	}
	if c.Panel.ServerID == "" {
		return fmt.Errorf("panel.server_id is required")
	}
	if c.Match.Dir == "" {
		return fmt.Errorf("match.dir is required")
	}
	if c.RCON.Address != "" && c.RCON.Password == "" {
		return fmt.Errorf("rcon.password is required when rcon.address is set")
	}
	return nil
}

// ValidMap reports whether name is in the map catalog.
func (c *Config) ValidMap(name string) bool {
	for _, m := range c.Match.Maps {
		if m == name {
			return true
		}
	}
	return false
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Match.CooldownSeconds) * time.Second
}

func (c *Config) PowerTimeout() time.Duration {
	return time.Duration(c.Match.PowerTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Match.PollIntervalSeconds) * time.Second
}

func (c *Config) PanelTimeout() time.Duration {
	return time.Duration(c.Panel.TimeoutSeconds) * time.Second
}
