// Package config loads agent settings from the OCT_* environment and an
// optional ~/.oct/config.toml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".oct"
	envPrefix  = "OCT"

	DefaultServerURL      = "https://api.open-collab.tools"
	DefaultAutomationPort = 8443
	DefaultSettleDelay    = 3 * time.Second
)

type Config struct {
	ServerURL       string
	AutomationPort  int
	BackendBaseURL  string
	AutoJoinRoom    string
	InstanceID      string
	UserName        string
	UserEmail       string
	SettleDelay     time.Duration
	LogLevel        string
	CredentialsPath string
	// FollowEmbeddedServer follows server URLs embedded in room references
	// without asking.
	FollowEmbeddedServer bool
}

// AutomationAddr is the loopback bind address for the automation endpoint.
func (c Config) AutomationAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.AutomationPort)
}

func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault("server_url", DefaultServerURL)
	cfg.SetDefault("automation_port", DefaultAutomationPort)
	cfg.SetDefault("backend_base_url", "")
	cfg.SetDefault("auto_join_room", "")
	cfg.SetDefault("instance_id", "")
	cfg.SetDefault("user_name", "")
	cfg.SetDefault("user_email", "")
	cfg.SetDefault("settle_delay", DefaultSettleDelay)
	cfg.SetDefault("log_level", "info")
	cfg.SetDefault("credentials_path", filepath.Join(homeDir, configDir, "credentials.toml"))
	cfg.SetDefault("follow_embedded_server", false)

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	loaded := Config{
		ServerURL:            strings.TrimRight(cfg.GetString("server_url"), "/"),
		AutomationPort:       cfg.GetInt("automation_port"),
		BackendBaseURL:       strings.TrimRight(cfg.GetString("backend_base_url"), "/"),
		AutoJoinRoom:         cfg.GetString("auto_join_room"),
		InstanceID:           cfg.GetString("instance_id"),
		UserName:             cfg.GetString("user_name"),
		UserEmail:            cfg.GetString("user_email"),
		SettleDelay:          cfg.GetDuration("settle_delay"),
		LogLevel:             cfg.GetString("log_level"),
		CredentialsPath:      cfg.GetString("credentials_path"),
		FollowEmbeddedServer: cfg.GetBool("follow_embedded_server"),
	}

	if loaded.ServerURL == "" {
		return Config{}, errors.New("server url is empty")
	}
	if loaded.AutomationPort < 0 || loaded.AutomationPort > 65535 {
		return Config{}, fmt.Errorf("automation port %d out of range", loaded.AutomationPort)
	}

	return loaded, nil
}
