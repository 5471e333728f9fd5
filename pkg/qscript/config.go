package qscript

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "QHOOK"
	DefaultFile = "qhook.yaml"

	DefaultKeyKey = "defaultKey"
)

// Load reads the script configuration from path. An empty path looks for
// qhook.yaml, qhook.yml or qhook.json in the working directory. Every call
// uses its own viper instance.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// QHOOK_DEFAULT_KEY overrides the file so secrets can stay out of it
	_ = v.BindEnv(DefaultKeyKey, EnvPrefix+"_DEFAULT_KEY")

	if path == "" {
		for _, name := range []string{DefaultFile, "qhook.yml", "qhook.json"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no script configuration found (looked for %s)", DefaultFile)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	normalize(&cfg)

	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.DefaultKey = strings.TrimSpace(cfg.DefaultKey)
	for i := range cfg.Handlers {
		h := &cfg.Handlers[i]
		h.FileExtension = strings.TrimPrefix(strings.TrimSpace(h.FileExtension), ".")
		h.ProcessName = strings.TrimSpace(h.ProcessName)
		for j := range h.ScriptsMapping {
			m := &h.ScriptsMapping[j]
			m.Name = strings.TrimSpace(m.Name)
			m.RecurringSchedule = strings.TrimSpace(m.RecurringSchedule)
			if m.Trigger != nil {
				m.Trigger.HttpMethod = strings.ToUpper(strings.TrimSpace(m.Trigger.HttpMethod))
			}
		}
	}
}
