// Package config reads the TOML configuration file of a deposit worker.
//
// A configuration file looks like
//
//	port = "14000"
//	temp_dir = "/var/depositor/tmp"
//	meta_dir = "/var/depositor/meta"
//	database = "/var/depositor/depositor.ql"
//	digest = "SHA-256"
//	progress_interval = "500ms"
//	workers = 4
//
//	[user_store]
//	type = "local"
//	[user_store.options]
//	root = "/home"
//
//	[archive_store]
//	type = "store"
//	[archive_store.options]
//	location = "s3://s3.amazonaws.com/bucket/archive/"
//
// Every key is optional.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/storage"
	"github.com/ndlib/depositor/util"
)

// Config holds the settings of a deposit worker.
type Config struct {
	Port      string `toml:"port"`
	PProfPort string `toml:"pprof_port"`

	TempDir string `toml:"temp_dir"`
	MetaDir string `toml:"meta_dir"`

	// MySQL is a DSN. If empty the QL database in Database is used.
	MySQL    string `toml:"mysql"`
	Database string `toml:"database"`

	Digest           string   `toml:"digest"`
	ProgressInterval Duration `toml:"progress_interval"`
	Workers          int      `toml:"workers"`

	SentryDSN string `toml:"sentry_dsn"`
	// Tokens is the file of API keys. If empty no keys are checked.
	Tokens string `toml:"tokens"`

	UserStore    Endpoint `toml:"user_store"`
	ArchiveStore Endpoint `toml:"archive_store"`
}

// Endpoint names a storage backend and its options.
type Endpoint struct {
	Type    string            `toml:"type"`
	Options map[string]string `toml:"options"`
}

// Spec converts e for use in a job.
func (e Endpoint) Spec() deposit.EndpointSpec {
	return deposit.EndpointSpec{Type: e.Type, Options: storage.Options(e.Options)}
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	td, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	c := defaults()
	c.fillEndpoints()
	return c
}

// defaults holds the value of every key not given in a file. The stores are
// filled in afterwards so their options are not merged with the file's.
func defaults() *Config {
	return &Config{
		Port:             "14000",
		TempDir:          os.TempDir(),
		MetaDir:          "meta",
		Database:         "depositor.ql",
		Digest:           string(util.SHA1),
		ProgressInterval: Duration(250 * time.Millisecond),
		Workers:          2,
	}
}

// The stores used when a file does not name them.
var (
	defaultUserStore    = Endpoint{Type: "local", Options: map[string]string{"root": "/"}}
	defaultArchiveStore = Endpoint{Type: "store", Options: map[string]string{"location": "archive"}}
)

func (c *Config) fillEndpoints() {
	if c.UserStore.Type == "" && len(c.UserStore.Options) == 0 {
		c.UserStore = defaultUserStore
	}
	if c.ArchiveStore.Type == "" && len(c.ArchiveStore.Options) == 0 {
		c.ArchiveStore = defaultArchiveStore
	}
}

// Load reads the configuration file fname on top of the defaults.
func Load(fname string) (*Config, error) {
	c := defaults()
	md, err := toml.DecodeFile(fname, c)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fname)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, errors.Errorf("%s: unknown key %s", fname, undec[0])
	}
	c.fillEndpoints()
	return c, c.Validate()
}

// Parse reads a configuration from the TOML text data.
func Parse(data string) (*Config, error) {
	c := defaults()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, err
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, errors.Errorf("unknown key %s", undec[0])
	}
	c.fillEndpoints()
	return c, c.Validate()
}

// Validate checks the values which can be checked without touching the
// file system.
func (c *Config) Validate() error {
	if _, err := util.ParseAlgorithm(c.Digest); err != nil {
		return errors.Wrapf(err, "digest %q", c.Digest)
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, not %d", c.Workers)
	}
	if c.ProgressInterval <= 0 {
		return errors.New("progress_interval must be positive")
	}
	if c.UserStore.Type == "" || c.ArchiveStore.Type == "" {
		return errors.New("user_store and archive_store need a type")
	}
	return nil
}

// Algorithm returns the digest algorithm to use for archived packages.
func (c *Config) Algorithm() util.Algorithm {
	alg, _ := util.ParseAlgorithm(c.Digest)
	return alg
}
