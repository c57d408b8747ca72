package fluid

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables read by Config.LoadEnv.
const EnvPrefix = "FLUID_"

// Config holds the tunables of a container.
type Config struct {
	// ConstructionWait bounds how long a resolution waits for another
	// goroutine constructing the same scoped component. Zero waits as long
	// as the resolution's context allows.
	ConstructionWait time.Duration `yaml:"construction_wait"`

	// LogLevel is the level of loggers built by NewLogger.
	LogLevel string `yaml:"log_level"`

	// VerifyOnStart runs Verify when the container starts.
	VerifyOnStart bool `yaml:"verify_on_start"`
}

// DefaultConfig returns the configuration containers use unless given one.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML configuration file. Keys absent from the file
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the caller
	if err != nil {
		return cfg, zerr.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, zerr.With(zerr.Wrap(err, "failed to parse config file"), "path", path)
	}
	if cfg.ConstructionWait < 0 {
		return cfg, zerr.With(zerr.New("construction_wait must not be negative"), "path", path)
	}
	return cfg, nil
}

// LoadEnv overrides cfg from FLUID_* variables. Values are looked up in the
// process environment first, then in the given .env files; files that do
// not exist are skipped.
//
//	FLUID_CONSTRUCTION_WAIT=5s
//	FLUID_LOG_LEVEL=debug
//	FLUID_VERIFY_ON_START=true
func (cfg *Config) LoadEnv(files ...string) error {
	fileEnv := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to read env file"), "file", file)
		}
		for k, v := range values {
			fileEnv[k] = v
		}
	}
	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}
		v, ok := fileEnv[EnvPrefix+name]
		return v, ok
	}

	if v, ok := lookup("CONSTRUCTION_WAIT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "invalid construction wait"), "value", v)
		}
		if d < 0 {
			return zerr.With(zerr.New("construction wait must not be negative"), "value", v)
		}
		cfg.ConstructionWait = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("VERIFY_ON_START"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "invalid verify on start"), "value", v)
		}
		cfg.VerifyOnStart = b
	}
	return nil
}
