package config

import (
	"os"
	"path/filepath"

	"github.com/kkyr/fig"
)

const (
	EnvPrefix = "DUALIVE"
	FileName  = "config.yaml"
)

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file,
// either a directory or the file itself.
// Reads and puts environment variables with the prefix DUALIVE_.
// Params from the config should be in uppercase separated with _,
// i.e. DUALIVE_DISPATCHER_VIDEOQUEUE=3.
func LoadConfig(config any, path string) error {
	file, dirs := FileName, []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".dualive"))
		}
	} else if filepath.Ext(path) != "" {
		file, dirs = filepath.Base(path), []string{filepath.Dir(path)}
	}
	return fig.Load(config, fig.File(file), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

// LoadConfigEnv fills the config only from struct defaults and env variables.
func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
