// Package config holds the settings of a harvest run, read from a json5 file
// and overridden by the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"moodle-harvest/lib/configutil"
)

const DefaultDataDir = "course_data"

type Config struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Token skips the token endpoint when set.
	Token string `json:"token"`

	// IDNumberSearch selects courses by idnumber, '*' matches anything.
	IDNumberSearch string   `json:"idnumber_search"`
	IDNumberList   []string `json:"idnumber_list"`

	DataDir string `json:"data_dir"`
	// LogDir defaults to DataDir.
	LogDir string `json:"log_dir"`
	// SQLite is the path of an optional database the datasets are also written to.
	SQLite            string  `json:"sqlite"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	OtlpEndpoint      string  `json:"otlp_endpoint"`
}

// Load reads the config file (and its .local override) if it exists, then
// applies the environment and the defaults. The result is not validated.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	err = cfg.applyEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"MOODLE_URL", &c.BaseUrl},
		{"MOODLE_USER", &c.Username},
		{"MOODLE_PASSWORD", &c.Password},
		{"MOODLE_TOKEN", &c.Token},
		{"IDNUMBER_SEARCH", &c.IDNumberSearch},
		{"DATA_STORE_PATH", &c.DataDir},
		{"LOG_STORE_PATH", &c.LogDir},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup("IDNUMBER_LIST"); ok && strings.TrimSpace(v) != "" {
		var list []string
		err := json.Unmarshal([]byte(v), &list)
		if err != nil {
			return fmt.Errorf("IDNUMBER_LIST must be a json array of strings: %w", err)
		}
		c.IDNumberList = list
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogDir == "" {
		c.LogDir = c.DataDir
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
	c.BaseUrl = strings.TrimSuffix(c.BaseUrl, "/")
}

// Validate checks that a harvest can be attempted with the config.
func (c Config) Validate() error {
	if c.BaseUrl == "" {
		return fmt.Errorf("base_url (MOODLE_URL) is required")
	}
	u, err := url.Parse(c.BaseUrl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute url", c.BaseUrl)
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("either token (MOODLE_TOKEN) or username and password (MOODLE_USER, MOODLE_PASSWORD) are required")
	}
	return nil
}

// HasSelection reports whether any course would be selected at all.
func (c Config) HasSelection() bool {
	return strings.TrimSpace(c.IDNumberSearch) != "" || len(c.IDNumberList) > 0
}
