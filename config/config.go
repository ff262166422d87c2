// Package config provides sectioned access to the bar configuration file.
//
// The file is YAML with one top-level map per section, named by kind and
// name:
//
//	bar/main:
//	  modules: date
//	module/date:
//	  type: internal/date
//	  date: "%Y-%m-%d"
//	  date-alt: "%A, %d %B %Y"
//
// Every key can be overridden from the environment with the BARCLOCK_ prefix,
// e.g. BARCLOCK_MODULE_DATE_DATE_ALT.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "BARCLOCK"

// Config is a read-only view of the configuration.
type Config struct {
	v *viper.Viper
}

// New wraps an existing viper instance.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("/", "_", ".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Read reads YAML configuration from r.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return New(v), nil
}

// Load reads the configuration file at path. If the path is empty, only the
// environment is used.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %q not found", path)
			}
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	return New(v), nil
}

// File returns the path of the file in use, if any.
func (c *Config) File() string {
	return c.v.ConfigFileUsed()
}

func key(section, name string) string {
	return section + "." + name
}

// Has checks whether section contains name.
func (c *Config) Has(section, name string) bool {
	return c.v.IsSet(key(section, name))
}

// Get returns the string value of name in section, or def if unset.
func (c *Config) Get(section, name, def string) string {
	if !c.Has(section, name) {
		return def
	}
	return c.v.GetString(key(section, name))
}

// GetInt is like Get, but parses the value as an integer.
func (c *Config) GetInt(section, name string, def int) (int, error) {
	if !c.Has(section, name) {
		return def, nil
	}
	s := strings.TrimSpace(c.v.GetString(key(section, name)))
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key(section, name), s)
	}
	return n, nil
}

// GetBool is like Get, but parses the value as a boolean.
func (c *Config) GetBool(section, name string, def bool) (bool, error) {
	if !c.Has(section, name) {
		return def, nil
	}
	s := strings.TrimSpace(c.v.GetString(key(section, name)))
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", key(section, name), s)
	}
	return b, nil
}

// GetList returns the list stored in name. Both a YAML sequence and numbered
// keys (name-0, name-1, ...) are accepted; the sequence takes precedence.
func (c *Config) GetList(section, name string) []string {
	switch raw := c.v.Get(key(section, name)).(type) {
	case []string:
		return raw
	case []any:
		list := make([]string, 0, len(raw))
		for _, v := range raw {
			list = append(list, fmt.Sprint(v))
		}
		return list
	}
	var list []string
	for i := 0; ; i++ {
		k := name + "-" + strconv.Itoa(i)
		if !c.Has(section, k) {
			break
		}
		list = append(list, c.Get(section, k, ""))
	}
	return list
}
