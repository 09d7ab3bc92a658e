// Package procconfig decides how a session's terminal process is launched:
// which arguments and environment it gets, read from the add-on's
// server-config file at every launch.
package procconfig

import (
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel          = "sonnet"
	DefaultPermissionMode = "default"
)

// ServerConfig is the add-on options file written by the supervisor run
// script. It is JSON in practice; YAML is accepted too.
type ServerConfig struct {
	AnthropicAPIKey string `yaml:"anthropicApiKey" json:"anthropicApiKey"`
	Model           string `yaml:"model" json:"model"`
	PermissionMode  string `yaml:"permissionMode" json:"permissionMode"`
	AutoBackup      bool   `yaml:"autoBackup" json:"autoBackup"`
}

// Defaults is the configuration used when the file is missing or unreadable.
func Defaults() ServerConfig {
	return ServerConfig{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:           DefaultModel,
		PermissionMode:  DefaultPermissionMode,
		AutoBackup:      true,
	}
}

// Load reads the server-config file. It never fails: any read or parse error
// is logged and the defaults are returned. Keys absent from the file keep
// their default values.
func Load(path string) ServerConfig {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[procconfig] reading %s: %v; using defaults", path, err)
		}
		return cfg
	}

	parsed := cfg
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		log.Printf("[procconfig] parsing %s: %v; using defaults", path, err)
		return cfg
	}
	return parsed
}

// Args returns the command-line flags for the configured permission mode and
// model. The default model needs no flag.
func (c ServerConfig) Args() []string {
	var args []string

	switch c.PermissionMode {
	case "bypassPermissions":
		args = append(args, "--dangerously-skip-permissions")
	case "plan":
		args = append(args, "--permission-mode", "plan")
	}

	if c.Model != "" && c.Model != DefaultModel {
		args = append(args, "--model", c.Model)
	}
	return args
}

// Env returns base with the session variables set, replacing any existing
// entries of the same name. supervisorToken is only set when non-empty.
func (c ServerConfig) Env(base []string, home, supervisorToken string) []string {
	env := make([]string, len(base))
	copy(env, base)

	env = setEnv(env, "ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	env = setEnv(env, "TERM", "xterm-256color")
	env = setEnv(env, "HOME", home)
	if supervisorToken != "" {
		env = setEnv(env, "SUPERVISOR_TOKEN", supervisorToken)
	}
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
