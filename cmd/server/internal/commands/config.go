package commands

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/personlookup/internal/server"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort      = 8443
	defaultInterface = "0.0.0.0"
)

// FileConfig is the YAML form of the listener settings.
//
//	port: 8443
//	interface: 0.0.0.0
//	primary_db: /var/lib/personlookup/primary.db
//	secondary_db: /var/lib/personlookup/secondary.db
type FileConfig struct {
	Port        int    `yaml:"port"`
	Interface   string `yaml:"interface"`
	PrimaryDB   string `yaml:"primary_db"`
	SecondaryDB string `yaml:"secondary_db"`
	Cert        string `yaml:"cert"`
	Key         string `yaml:"key"`
}

// LoadFileConfig reads a YAML config file. Unknown keys are rejected.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cfg := &FileConfig{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// resolveConfig layers the flag values over the file values over the built-in defaults.
// A zero flag value counts as unset.
func (c *ServeCmd) resolveConfig(file *FileConfig) server.Config {
	if file == nil {
		file = &FileConfig{}
	}

	return server.Config{
		Port:            cmp.Or(c.Port, file.Port, defaultPort),
		BindAddress:     cmp.Or(c.Interface, file.Interface, defaultInterface),
		PrimaryDBPath:   cmp.Or(c.PrimaryDB, file.PrimaryDB),
		SecondaryDBPath: cmp.Or(c.SecondaryDB, file.SecondaryDB),
		CertFile:        cmp.Or(c.Cert, file.Cert),
		KeyFile:         cmp.Or(c.Key, file.Key),
		PollInterval:    c.PollInterval,
	}
}
