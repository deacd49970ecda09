// Package config loads the optional on-disk overlay for a Store's
// tunables (busy timeout, schema directory overrides, replicator
// defaults). It is never required: a Store opens fine with zero-value
// Options.
//
// A viper.New() instance is pointed at one file, tolerant of the file
// not existing, and read back with explicit v.Get calls rather than a
// blanket struct Unmarshal; BurntSushi/toml handles the Write side.
// Env-var overlay (LDB_BUSY_TIMEOUT_MS and friends) uses viper's
// AutomaticEnv.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment-variable overlay: LDB_BUSY_TIMEOUT_MS,
// LDB_SCHEMA_DIR, LDB_REPLICATION_MAX_START_RETRIES, ...
const EnvPrefix = "LDB"

// Options overlays the defaults a Store is opened with. Zero value means
// "use every built-in default."
type Options struct {
	BusyTimeoutMillis int                `toml:"busy_timeout_ms"`
	SchemaDir         string             `toml:"schema_dir"`
	Replication       ReplicationOptions `toml:"replication"`
}

// ReplicationOptions overlays replicator-bookkeeping tunables.
type ReplicationOptions struct {
	ContinuousByDefault bool `toml:"continuous_by_default"`
	MaxStartRetries     int  `toml:"max_start_retries"`
}

// Load reads path (an ldb.toml-format file), overlaid with any LDB_*
// environment variables, into Options. A missing file is not an error:
// Load returns the zero-value Options (possibly still overridden by
// environment).
func Load(path string) (Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Options{}, fmt.Errorf("config: stat %s: %w", path, err)
	}

	return Options{
		BusyTimeoutMillis: v.GetInt("busy_timeout_ms"),
		SchemaDir:         v.GetString("schema_dir"),
		Replication: ReplicationOptions{
			ContinuousByDefault: v.GetBool("replication.continuous_by_default"),
			MaxStartRetries:     v.GetInt("replication.max_start_retries"),
		},
	}, nil
}

// Write serializes opts to path in TOML, for callers that want to seed a
// default ldb.toml next to a fresh database.
func Write(path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(opts); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
