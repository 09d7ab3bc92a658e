package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	// DataPath is the add-on's persistent directory. The file paths below
	// default to locations inside it when left unset.
	DataPath           string `envconfig:"DATA_PATH" default:"/data"`
	DatabasePath       string `envconfig:"DATABASE_PATH" default:""`
	LegacySessionsFile string `envconfig:"LEGACY_SESSIONS_FILE" default:""`
	ServerConfigPath   string `envconfig:"SERVER_CONFIG_PATH" default:""`
	LogPath            string `envconfig:"LOG_PATH" default:""`
	ListenAddr         string `envconfig:"LISTEN_ADDR" default:":3001"`
	FrontendDir        string `envconfig:"FRONTEND_DIR" default:""`

	// Terminal process settings
	Command      string        `envconfig:"COMMAND" default:"claude"`
	WorkDir      string        `envconfig:"WORK_DIR" default:"/homeassistant"`
	HomeDir      string        `envconfig:"HOME_DIR" default:"/root"`
	TermCols     uint16        `envconfig:"TERM_COLS" default:"120"`
	TermRows     uint16        `envconfig:"TERM_ROWS" default:"40"`
	BufferChunks int           `envconfig:"BUFFER_CHUNKS" default:"5000"`
	KillGrace    time.Duration `envconfig:"KILL_GRACE" default:"5s"`

	// ActivitySyncSchedule is a robfig/cron schedule for flushing session
	// activity into the session store.
	ActivitySyncSchedule string `envconfig:"ACTIVITY_SYNC_SCHEDULE" default:"@every 1m"`

	// Home Assistant
	HAConfigDir     string `envconfig:"HA_CONFIG_DIR" default:"/homeassistant"`
	SupervisorURL   string `envconfig:"SUPERVISOR_URL" default:"http://supervisor/core/api"`
	SupervisorToken string `envconfig:"SUPERVISOR_TOKEN" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("CLAUDE_TERMINAL", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg.applyDataPath()
}

func (s *Settings) applyDataPath() {
	defaults := []struct {
		field *string
		rel   string
	}{
		{&s.DatabasePath, "sessions/sessions.db"},
		{&s.LegacySessionsFile, "sessions/sessions.json"},
		{&s.ServerConfigPath, "server-config.json"},
		{&s.LogPath, "claude-terminal.log"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = filepath.Join(s.DataPath, d.rel)
		}
	}
}
