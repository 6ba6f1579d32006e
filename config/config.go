package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DefaultAddress string `toml:"default-address,omitempty"`
	configPath     string
}

func NewDefault() (*Config, error) {
	forgeHome := os.Getenv("FORGE_HOME")
	if forgeHome == "" {
		forgeHome = filepath.Join(os.Getenv("HOME"), ".forge")
	}
	return New(forgeHome)
}

func New(path string) (*Config, error) {
	configPath := filepath.Join(path, "config.toml")
	config, err := previousConfig(path)
	if err != nil {
		return nil, err
	}

	config.configPath = configPath

	if err := config.save(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0777); err != nil {
		return err
	}
	w, err := os.Create(c.configPath)
	if err != nil {
		return err
	}
	defer w.Close()

	return toml.NewEncoder(w).Encode(c)
}

func previousConfig(path string) (*Config, error) {
	configPath := filepath.Join(path, "config.toml")
	config := &Config{}
	_, err := toml.DecodeFile(configPath, config)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return config, nil
}

// Path returns the directory path where the config is stored as a toml file.
// That directory may also contain other `forge` related files.
func (c *Config) Path() string {
	return filepath.Dir(c.configPath)
}

func (c *Config) SetDefaultAddress(addr string) error {
	c.DefaultAddress = addr
	return c.save()
}
