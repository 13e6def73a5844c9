package config

import (
	"os"
	"strconv"
)

// ApplyEnv overlays environment variables onto a loaded config.
// Unset variables leave the config untouched.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DAILY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DAILY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DAILY_CACHE_VERSION"); v != "" {
		c.Cache.Version = v
	}
	if v := os.Getenv("DAILY_UPSTREAM_BASE_URL"); v != "" {
		c.Cache.UpstreamBaseURL = v
	}
	if v := getEnvInt("DAILY_STALE_AFTER_HOURS"); v > 0 {
		c.Day.StaleAfterHours = v
	}
	if v := getEnvInt("DAILY_CONFIRM_SKEW_SECONDS"); v > 0 {
		c.Day.ConfirmSkewSeconds = v
	}
	if v := os.Getenv("DAILY_AUTOSTART"); v != "" {
		c.Autostart = v == "1" || v == "true"
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}
