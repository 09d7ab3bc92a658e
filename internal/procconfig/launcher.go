package procconfig

import (
	"os"
	"time"

	"github.com/hass-addons/claude-terminal/internal/config"
	"github.com/hass-addons/claude-terminal/internal/ptyproc"
	"github.com/hass-addons/claude-terminal/internal/termsession"
)

// LauncherConfig holds what stays fixed across launches. The server-config
// file at ConfigPath is re-read for every launch.
type LauncherConfig struct {
	ConfigPath      string
	Command         string
	Dir             string
	Home            string
	Cols            uint16
	Rows            uint16
	KillGrace       time.Duration
	SupervisorToken string
}

// Launcher starts session processes on a pseudo-terminal. It implements
// termsession.Launcher.
type Launcher struct {
	cfg     LauncherConfig
	environ func() []string
}

func NewLauncher(cfg LauncherConfig) *Launcher {
	return &Launcher{cfg: cfg, environ: os.Environ}
}

// NewLauncherFromSettings builds a Launcher from the loaded service settings.
func NewLauncherFromSettings(s config.Settings) *Launcher {
	return NewLauncher(LauncherConfig{
		ConfigPath:      s.ServerConfigPath,
		Command:         s.Command,
		Dir:             s.WorkDir,
		Home:            s.HomeDir,
		Cols:            s.TermCols,
		Rows:            s.TermRows,
		KillGrace:       s.KillGrace,
		SupervisorToken: s.SupervisorToken,
	})
}

// Options resolves the launch options for one session.
func (l *Launcher) Options() ptyproc.Options {
	sc := Load(l.cfg.ConfigPath)
	return ptyproc.Options{
		Command:   l.cfg.Command,
		Args:      sc.Args(),
		Dir:       l.cfg.Dir,
		Env:       sc.Env(l.environ(), l.cfg.Home, l.cfg.SupervisorToken),
		Cols:      l.cfg.Cols,
		Rows:      l.cfg.Rows,
		KillGrace: l.cfg.KillGrace,
	}
}

func (l *Launcher) Launch(sessionID string, h ptyproc.Handlers) (termsession.Process, error) {
	p, err := ptyproc.Spawn(l.Options(), h)
	if err != nil {
		return nil, err
	}
	return p, nil
}
