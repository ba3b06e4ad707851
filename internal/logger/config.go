package logger

// Config describes where logs go and at which levels.
type Config struct {
	Level        string            `yaml:"level" mapstructure:"level"`                 // default level for all modules
	Timezone     string            `yaml:"timezone" mapstructure:"timezone"`           // "Local", "UTC" or an IANA name
	Console      bool              `yaml:"console" mapstructure:"console"`             // human-readable text on stdout
	FilePath     string            `yaml:"file" mapstructure:"file"`                   // JSON log file, empty disables
	ModuleLevels map[string]string `yaml:"module_levels" mapstructure:"module_levels"` // per-module overrides
}

// DefaultLogLevel applies to modules without an override.
const DefaultLogLevel = "info"

// DefaultConfig returns a console-only configuration at info level.
func DefaultConfig() Config {
	return Config{
		Level:    DefaultLogLevel,
		Timezone: "Local",
		Console:  true,
	}
}
