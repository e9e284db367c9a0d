// Package config loads televerifierd's runtime configuration via viper,
// the configuration library used across the broader example pack for
// services with this server/store/listen-address shape (the teacher
// itself hard-codes its DSN/address in main(), so this generalizes that
// to a file+env-driven config the way a long-running daemon needs).
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is televerifierd's runtime configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8443".
	ListenAddr string `mapstructure:"listen_addr"`
	// TLSCert and TLSKey are the server's TLS certificate pair paths.
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
	// RegerDSN is the SQLite DSN for the TEL store.
	RegerDSN string `mapstructure:"reger_dsn"`
	// BaserDSN is the SQLite DSN for the local KEL mirror.
	BaserDSN string `mapstructure:"baser_dsn"`
	// LocalRegk restricts processing to/from this registry identifier,
	// per Tevery's local/nonlocal event restriction.
	LocalRegk string `mapstructure:"local_regk"`
	// Local selects whether only LocalRegk's events are accepted (true)
	// or only events for registries other than LocalRegk (false).
	Local bool `mapstructure:"local"`
	// NoBackers is loaded but not passed to the verifier: a registry is
	// backerless only when its vcp carries the NB trait.
	NoBackers bool `mapstructure:"no_backers"`
	// EscrowIntervalSeconds is how often the daemon drains escrow
	// queues in the background.
	EscrowIntervalSeconds int `mapstructure:"escrow_interval_seconds"`
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen_addr", ":8443")
	v.SetDefault("tls_cert", "")
	v.SetDefault("tls_key", "")
	v.SetDefault("local_regk", "")
	v.SetDefault("reger_dsn", "reger.db")
	v.SetDefault("baser_dsn", "baser.db")
	v.SetDefault("local", false)
	v.SetDefault("no_backers", false)
	v.SetDefault("escrow_interval_seconds", 5)
	return v
}

// Load reads configuration from configPath (if non-empty) plus the
// TELEVERIFIER_-prefixed environment, falling back to defaults for
// anything unset.
func Load(configPath string) (*Config, error) {
	v := defaults()
	v.SetEnvPrefix("televerifier")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
