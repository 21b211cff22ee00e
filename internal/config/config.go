// Package config locates and loads jude's own settings: the default
// permission level new resources/collections install at, the notification
// queue capacity a database wires up by default, and whether root-level
// REST mutation (database.New's allowGlobal) is permitted.
//
// Grounded on BeadsLog's internal/config.Initialize locate-then-load shape
// (walk up from cwd for a project file, then a user config dir, then a
// home-dir fallback) and viper (github.com/spf13/viper), repurposed from
// BeadsLog's own CLI flags to jude's three settings. BurntSushi/toml
// remains available as LoadTOML, the toml counterpart to the yaml loader,
// for operators who prefer a TOML config file over jude.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/jude/internal/schema"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at host-process startup, before any Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from cwd looking for a project-level jude.yaml, so a host
	//    process started from a subdirectory still finds it.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "jude.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/jude/config.yaml).
	if !configFileSet {
		if dir, err := os.UserConfigDir(); err == nil {
			p := filepath.Join(dir, "jude", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
			}
		}
	}

	// 3. Home directory fallback (~/.jude/config.yaml).
	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(home, ".jude", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
			}
		}
	}

	// Environment variables (JUDE_PERMISSION_DEFAULT_LEVEL, etc.) take
	// precedence over a config file.
	v.SetEnvPrefix("JUDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("permission.default-level", "public")
	v.SetDefault("notify.queue-capacity", 256)
	v.SetDefault("database.allow-root-mutation", false)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading config file: %w", err)
		}
	}
	return nil
}

// ConfigFileUsed returns the path Initialize loaded jude.yaml from, or ""
// if no config file was found (defaults and environment variables only).
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString, GetBool, and GetInt expose the raw viper lookup for callers
// that need a setting this package doesn't name a typed accessor for.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// DefaultPermissionLevel returns the permission.default-level setting as a
// schema.Level, defaulting to schema.Public for an unrecognized value.
func DefaultPermissionLevel() schema.Level {
	switch strings.ToLower(GetString("permission.default-level")) {
	case "admin":
		return schema.Admin
	case "root":
		return schema.Root
	default:
		return schema.Public
	}
}

// QueueCapacity returns the notify.queue-capacity setting, falling back to
// 256 (notify.DefaultCapacity) for a non-positive value.
func QueueCapacity() int {
	if n := GetInt("notify.queue-capacity"); n > 0 {
		return n
	}
	return 256
}

// AllowRootMutation returns the database.allow-root-mutation setting, fed
// straight into database.New's allowGlobal parameter.
func AllowRootMutation() bool {
	return GetBool("database.allow-root-mutation")
}

// Dump renders every effective setting (defaults, config file, and
// environment overrides merged) as YAML, for an operator inspecting what
// a running process actually resolved jude.yaml to.
func Dump() (string, error) {
	if v == nil {
		return "", fmt.Errorf("config: not initialized")
	}
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return "", fmt.Errorf("config: marshaling settings: %w", err)
	}
	return string(out), nil
}

// TOMLConfig mirrors the subset of jude.yaml settings an operator can
// instead supply as TOML.
type TOMLConfig struct {
	Permission struct {
		DefaultLevel string `toml:"default-level"`
	} `toml:"permission"`
	Notify struct {
		QueueCapacity int `toml:"queue-capacity"`
	} `toml:"notify"`
	Database struct {
		AllowRootMutation bool `toml:"allow-root-mutation"`
	} `toml:"database"`
}

// LoadTOML reads path as TOML and applies its values on top of whatever
// Initialize already loaded -- the toml counterpart to the yaml loader,
// for operators who prefer a TOML config file to jude.yaml. Call it after
// Initialize; an empty default-level or a zero queue-capacity in the TOML
// file leaves that setting at Initialize's value, while allow-root-mutation
// is always applied (an absent key sets it to false).
func LoadTOML(path string) error {
	var cfg TOMLConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return fmt.Errorf("config: decoding TOML file %s: %w", path, err)
	}
	if v == nil {
		v = viper.New()
	}
	if cfg.Permission.DefaultLevel != "" {
		v.Set("permission.default-level", cfg.Permission.DefaultLevel)
	}
	if cfg.Notify.QueueCapacity != 0 {
		v.Set("notify.queue-capacity", cfg.Notify.QueueCapacity)
	}
	v.Set("database.allow-root-mutation", cfg.Database.AllowRootMutation)
	return nil
}

// Watch starts watching the config file Initialize located for writes,
// reloading it and invoking onChange after each one. It returns a stop
// function that ends the watch; if no config file was found, Watch is a
// no-op and stop does nothing. Grounded directly on BeadsLog's
// cmd/bd/daemon_watcher.go: a raw fsnotify.Watcher on the file's parent
// directory, matched against the exact file name, rather than viper's own
// file watching (Initialize does not call viper's WatchConfig) -- this is
// the one place the expanded spec exercises fsnotify directly.
func Watch(onChange func()) (stop func(), err error) {
	if v == nil || v.ConfigFileUsed() == "" {
		return func() {}, nil
	}
	path := v.ConfigFileUsed()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == path && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := v.ReadInConfig(); err == nil && onChange != nil {
						onChange()
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
