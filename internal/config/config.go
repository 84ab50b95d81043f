package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8080"`
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`

	// Admin account and login throttling
	AuthUsername     string `envconfig:"AUTH_USERNAME" default:"admin"`
	AuthPassword     string `envconfig:"AUTH_PASSWORD" default:"password"`
	MaxLoginAttempts int    `envconfig:"MAX_LOGIN_ATTEMPTS" default:"5"`
	LockoutMinutes   int    `envconfig:"LOCKOUT_MINUTES" default:"15"`
	SessionMinutes   int    `envconfig:"SESSION_MINUTES" default:"30"`

	// Defaults offered by the UI for quick connections
	DefaultSSHHost     string `envconfig:"DEFAULT_SSH_HOST" default:""`
	DefaultSSHUsername string `envconfig:"DEFAULT_SSH_USERNAME" default:"root"`
	DefaultSSHPassword string `envconfig:"DEFAULT_SSH_PASSWORD" default:""`
	DefaultContainer   string `envconfig:"DEFAULT_CONTAINER" default:"bot"`

	// SSH pool tuning
	SSHIdleTimeout string `envconfig:"SSH_IDLE_TIMEOUT" default:"5m"`
	SSHMaxDials    int64  `envconfig:"SSH_MAX_DIALS" default:"3"`

	// Optional YAML host inventory imported at startup
	HostsFile string `envconfig:"HOSTS_FILE" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("AIMLUL", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
