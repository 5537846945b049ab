package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultFileWriteDelay = 150 * time.Millisecond // small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults, matching
// the zero-value behaviour of client.Client / pool.Pool when unconfigured.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			IdleTimeout:       60 * time.Second,
			ConnectTimeout:    0, // no connect timeout by default
			ReadTimeout:       0, // disabled by default, matching thor.http.client
			RetryLimit:        2,
			RetryDelay:        500 * time.Millisecond,
			StreamBufferSize:  8 * 1024,
			CircuitThreshold:  5,
			CircuitResetAfter: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Theme:  "default",
		},
		Engineering: EngineeringConfig{
			ShowNerdStats: false,
			Profile:       false,
		},
	}
}

// Load loads configuration from file and environment variables, overlaying
// DefaultConfig(). onConfigChange, if non-nil, is invoked (after a short
// debounce) whenever the config file changes on disk.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("thor")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("THOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Unmarshal only sees environment values for keys viper already knows,
	// so register every Config field for environment lookup.
	for _, k := range []string{
		"client.idletimeout", "client.connecttimeout", "client.readtimeout",
		"client.retrylimit", "client.retrydelay", "client.streambuffersize",
		"client.circuitthreshold", "client.circuitresetafter",
		"logging.level", "logging.format", "logging.theme",
		"engineering.shownerdstats", "engineering.profile",
	} {
		_ = viper.BindEnv(k)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("THOR_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}
