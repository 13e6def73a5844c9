package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string      `yaml:"listen_addr" json:"listen_addr"`
	DataDir    string      `yaml:"data_dir" json:"data_dir"`
	Theme      string      `yaml:"theme" json:"theme"`
	Autostart  bool        `yaml:"autostart" json:"autostart"`
	Day        DayConfig   `yaml:"day" json:"day"`
	Cache      CacheConfig `yaml:"cache" json:"cache"`
}

type DayConfig struct {
	// StaleAfterHours is the auto-reset threshold for a wake time left
	// over from a previous calendar day.
	StaleAfterHours int `yaml:"stale_after_hours" json:"stale_after_hours"`
	// ConfirmSkewSeconds is the largest same-day wake-time change that
	// commits without destructive-reset confirmation.
	ConfirmSkewSeconds int `yaml:"confirm_skew_seconds" json:"confirm_skew_seconds"`
}

type CacheConfig struct {
	// Version names the current manifest generation. Bumping it evicts
	// every other cached version on the next activation.
	Version string `yaml:"version" json:"version"`
	// Manifest lists resources to precache: same-origin paths and
	// absolute cross-origin URLs.
	Manifest []string `yaml:"manifest" json:"manifest"`
	// UpstreamBaseURL is where same-origin paths are fetched from during
	// install. Defaults to the server's own listen address.
	UpstreamBaseURL string `yaml:"upstream_base_url" json:"upstream_base_url"`
	FetchTimeoutS   int    `yaml:"fetch_timeout_s" json:"fetch_timeout_s"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8274",
		DataDir:    "data",
		Theme:      "light",
		Day: DayConfig{
			StaleAfterHours:    20,
			ConfirmSkewSeconds: 60,
		},
		Cache: CacheConfig{
			Version: "daily-cache-v1",
			Manifest: []string{
				"/",
				"/index.html",
				"/css/app.css",
				"/js/app.js",
				"https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600;700&display=swap",
				"https://fonts.gstatic.com/s/inter/v13/UcC73FwrK3iLTeHuS_fvQtMwCp50KnMa1ZL7W0Q5nw.woff2",
			},
			FetchTimeoutS: 10,
		},
	}
}

func (c *Config) ApplyDefaults() {
	d := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Theme == "" {
		c.Theme = d.Theme
	}
	if c.Day.StaleAfterHours == 0 {
		c.Day.StaleAfterHours = d.Day.StaleAfterHours
	}
	if c.Day.ConfirmSkewSeconds == 0 {
		c.Day.ConfirmSkewSeconds = d.Day.ConfirmSkewSeconds
	}
	if c.Cache.Version == "" {
		c.Cache.Version = d.Cache.Version
	}
	if len(c.Cache.Manifest) == 0 {
		c.Cache.Manifest = d.Cache.Manifest
	}
	if c.Cache.FetchTimeoutS == 0 {
		c.Cache.FetchTimeoutS = d.Cache.FetchTimeoutS
	}
}

// Load reads a yaml config file. A missing file is not an error; the
// defaults stand in for it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return &c, nil
}
