package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chatgate/go-chatgate/lib/util"
	"github.com/go-i2p/logger"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const CHATGATE_BASE_DIR = ".chatgate"

func InitConfig() {
	if CfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		// Set up viper to use the default config path $HOME/.chatgate/
		viper.AddConfigPath(BuildChatGateDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	bindEnvironment()

	// Load defaults
	setDefaults()

	// handle config file creating it if needed
	handleConfigFile()
}

// bindEnvironment enables CHATGATE_* overrides for every key, with dots
// mapped to underscores (http.address -> CHATGATE_HTTP_ADDRESS).
func bindEnvironment() {
	viper.SetEnvPrefix("chatgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setDefaults() {
	defaults := Defaults()

	// HTTP defaults
	viper.SetDefault("http.address", defaults.HTTP.Address)
	viper.SetDefault("http.read_timeout", defaults.HTTP.ReadTimeout)
	viper.SetDefault("http.write_timeout", defaults.HTTP.WriteTimeout)
	viper.SetDefault("http.idle_timeout", defaults.HTTP.IdleTimeout)
	viper.SetDefault("http.shutdown_timeout", defaults.HTTP.ShutdownTimeout)

	// Credential store defaults
	viper.SetDefault("store.path", defaults.Store.Path)

	// Session registry defaults
	viper.SetDefault("session.grace_window", defaults.Session.GraceWindow)
	viper.SetDefault("session.start_rate", defaults.Session.StartRate)
	viper.SetDefault("session.start_burst", defaults.Session.StartBurst)

	// Messenger defaults
	viper.SetDefault("messenger.backend", defaults.Messenger.Backend)

	// Clock advisory defaults
	viper.SetDefault("ntp.enabled", defaults.NTP.Enabled)
	viper.SetDefault("ntp.servers", defaults.NTP.Servers)
	viper.SetDefault("ntp.query_interval", defaults.NTP.QueryInterval)
}

// NewGatewayConfigFromViper creates a new GatewayConfig from current viper
// settings. This is the way the rest of the gateway consumes configuration;
// nothing outside this package reads viper keys directly.
func NewGatewayConfigFromViper() *GatewayConfig {
	return &GatewayConfig{
		HTTP:      buildHTTPConfig(),
		Store:     buildStoreConfig(),
		Session:   buildSessionConfig(),
		Messenger: buildMessengerConfig(),
		NTP:       buildNTPConfig(),
	}
}

func buildHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Address:         viper.GetString("http.address"),
		ReadTimeout:     viper.GetDuration("http.read_timeout"),
		WriteTimeout:    viper.GetDuration("http.write_timeout"),
		IdleTimeout:     viper.GetDuration("http.idle_timeout"),
		ShutdownTimeout: viper.GetDuration("http.shutdown_timeout"),
	}
}

func buildStoreConfig() *StoreConfig {
	return &StoreConfig{
		Path: viper.GetString("store.path"),
	}
}

func buildSessionConfig() *SessionConfig {
	return &SessionConfig{
		GraceWindow: viper.GetDuration("session.grace_window"),
		StartRate:   viper.GetFloat64("session.start_rate"),
		StartBurst:  viper.GetInt("session.start_burst"),
	}
}

func buildMessengerConfig() *MessengerConfig {
	return &MessengerConfig{
		Backend: viper.GetString("messenger.backend"),
	}
}

func buildNTPConfig() *NTPConfig {
	return &NTPConfig{
		Enabled:       viper.GetBool("ntp.enabled"),
		Servers:       viper.GetStringSlice("ntp.servers"),
		QueryInterval: viper.GetDuration("ntp.query_interval"),
	}
}

// EffectiveSettings returns the loaded configuration as a nested map keyed the
// same way as the configuration file, with durations rendered in Go duration
// syntax ("15s"). Marshaling the result to YAML yields a file that can be
// written back to config.yaml unchanged.
func EffectiveSettings() map[string]interface{} {
	cfg := NewGatewayConfigFromViper()
	return map[string]interface{}{
		"http": map[string]interface{}{
			"address":          cfg.HTTP.Address,
			"read_timeout":     cfg.HTTP.ReadTimeout.String(),
			"write_timeout":    cfg.HTTP.WriteTimeout.String(),
			"idle_timeout":     cfg.HTTP.IdleTimeout.String(),
			"shutdown_timeout": cfg.HTTP.ShutdownTimeout.String(),
		},
		"store": map[string]interface{}{
			"path": cfg.Store.Path,
		},
		"session": map[string]interface{}{
			"grace_window": cfg.Session.GraceWindow.String(),
			"start_rate":   cfg.Session.StartRate,
			"start_burst":  cfg.Session.StartBurst,
		},
		"messenger": map[string]interface{}{
			"backend": cfg.Messenger.Backend,
		},
		"ntp": map[string]interface{}{
			"enabled":        cfg.NTP.Enabled,
			"servers":        cfg.NTP.Servers,
			"query_interval": cfg.NTP.QueryInterval.String(),
		},
	}
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	// Ensure directory exists
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		log.Fatalf("Could not create config directory: %s", err)
	}

	// Write current config file
	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		log.Fatalf("Could not write default config file: %s", err)
	}

	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Fatalf("Config file %s is not found: %s", CfgFile, err)
			} else {
				createDefaultConfig(BuildChatGateDirPath())
			}
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	} else {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func BuildChatGateDirPath() string {
	return filepath.Join(util.UserHome(), CHATGATE_BASE_DIR)
}
