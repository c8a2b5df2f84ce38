/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package archive

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Type represents an archive backend type.
type Type string

const (
	// Disabled keeps no history.
	Disabled Type = "none"

	// BadgerDB stores history in an embedded BadgerDB database.
	BadgerDB Type = "badgerdb"

	// PostgreSQL stores history in a PostgreSQL database.
	PostgreSQL Type = "pgsql"

	// MySQL stores history in a MySQL database.
	MySQL Type = "mysql"
)

const (
	dataDirName = ".parley"
	archiveName = "archive"

	// DefaultPoolSize defines the default size of the database connection pool.
	DefaultPoolSize = 4
)

// DefaultDataDir returns the default directory for BadgerDB archive, under
// the user home directory. A relative path is used when home is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || len(home) == 0 {
		return filepath.Join(".", dataDirName, archiveName)
	}
	return filepath.Join(home, dataDirName, archiveName)
}

// BadgerDBConfig represents BadgerDB archive configuration.
type BadgerDBConfig struct {
	DataDir string `yaml:"data_dir"`
}

// SQLConfig represents PostgreSQL and MySQL archive configuration.
type SQLConfig struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	PoolSize int    `yaml:"pool_size"`
}

// Config represents message archive configuration.
type Config struct {
	Type     Type           `yaml:"type"`
	BadgerDB BadgerDBConfig `yaml:"badgerdb"`
	SQL      SQLConfig      `yaml:"sql"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig Config

	parsed := rawConfig{
		Type:     Disabled,
		BadgerDB: BadgerDBConfig{DataDir: DefaultDataDir()},
		SQL:      SQLConfig{SSLMode: "disable", PoolSize: DefaultPoolSize},
	}
	if err := unmarshal(&parsed); err != nil {
		return err
	}
	cfg := Config(parsed)
	if err := cfg.Validate(); err != nil {
		return err
	}
	*c = cfg
	return nil
}

// Validate checks archive configuration consistency.
func (c *Config) Validate() error {
	switch c.Type {
	case Disabled:
	case BadgerDB:
		if len(c.BadgerDB.DataDir) == 0 {
			return errors.New("archive: badgerdb data_dir required")
		}
	case PostgreSQL, MySQL:
		if len(c.SQL.Host) == 0 || len(c.SQL.Database) == 0 {
			return errors.Errorf("archive: %s host and database required", c.Type)
		}
	default:
		return errors.Errorf("archive: unrecognized type: %s", c.Type)
	}
	return nil
}
