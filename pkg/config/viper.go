// Package config prepares the Viper instance shared by the prerender CLI.
// It layers defaults, an optional config file, PRERENDER_* environment
// variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	appconfig "github.com/JakeFAU/prerender/internal/config"
)

// FileName is the config file base name searched for when no explicit
// file is given.
const FileName = "prerender"

// SearchPaths are the directories searched for FileName, in order.
var SearchPaths = []string{".", "/etc/prerender/", "$HOME/.prerender"}

// FlagKeys maps CLI flag names to config keys.
var FlagKeys = map[string]string{
	"output":           "output.dir",
	"root-document":    "output.root_document",
	"host":             "server.host",
	"port":             "server.port",
	"route":            "routes",
	"workers":          "browser.workers",
	"nav-timeout":      "browser.nav_timeout",
	"idle-window":      "browser.idle_window",
	"settle-delay":     "browser.settle_delay",
	"ready-expression": "browser.ready_expression",
	"ready-timeout":    "browser.ready_timeout",
	"chrome":           "browser.exec_path",
	"no-sandbox":       "browser.no_sandbox",
	"manifest":         "manifest.path",
	"log-level":        "logging.level",
	"dev-logs":         "logging.development",
}

// NewViper builds a Viper with defaults and environment binding, reads the
// config file (explicit path, or the first FileName found on SearchPaths),
// and binds any flags from FlagKeys present in flags. It returns the file
// used, or "" when running on defaults.
func NewViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, string, error) {
	v := viper.New()
	appconfig.SetDefaults(v)

	v.SetEnvPrefix(appconfig.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, "", fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return v, v.ConfigFileUsed(), nil
}
