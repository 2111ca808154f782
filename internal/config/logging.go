package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/dawio/internal/logging"
)

// LoggingConfig reads the [logging] table of the options file at path on
// top of base. Keys other than level and format are module levels, as are
// the entries of a nested [logging.modules] table. A missing or unreadable
// file returns base unchanged.
func LoggingConfig(path string, base logging.Config) logging.Config {
	out := base
	out.Modules = map[string]string{}
	for k, v := range base.Modules {
		out.Modules[k] = v
	}
	if path == "" {
		return out
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var doc struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return out
	}
	for k, raw := range doc.Logging {
		switch val := raw.(type) {
		case string:
			switch k {
			case "level":
				out.Level = val
			case "format":
				out.Format = val
			default:
				out.Modules[k] = val
			}
		case map[string]any:
			if k != "modules" {
				continue
			}
			for m, lvl := range val {
				if s, ok := lvl.(string); ok {
					out.Modules[m] = s
				}
			}
		}
	}
	return out
}
