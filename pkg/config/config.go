package config

import (
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the config file looked up in the workspace root
const FileName = "docs-tool.toml"

// Config describes all configuration options
type Config struct {
	BuildFile string `default:"BUILD" toml:"build_file" env:"BUILD_FILE" usage:"Name of the BUILD files (BUILD.bazel is probed as well)"`
	OutDir    string `default:"_build" toml:"out_dir" env:"OUT_DIR" usage:"Directory for generated files"`
	StateDB   string `default:"_build/.state.db" toml:"state_db" env:"STATE_DB" usage:"Database remembering finished targets"`
	Log       struct {
		Level string `default:"info" toml:"level" env:"LEVEL"`
		JSON  bool   `default:"false" toml:"json" env:"JSON" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
	Sourcelinks struct {
		Tags []string `default:"score:req:,req-Id:,req-traceability:" toml:"tags" env:"TAGS" usage:"Comment tags marking need references"`
	} `toml:"sourcelinks" env:"SOURCELINKS"`
	Docs struct {
		Title string `default:"Documentation" toml:"title" env:"TITLE" usage:"Title of the generated index page"`
	} `toml:"docs" env:"DOCS"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. The config file is
// read from root.
func Loader(root string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DOCSTOOL",
		SkipFlags: true,
		Files:     []string{filepath.Join(root, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads and validates the config for the workspace in root. Relative paths are resolved against
// root.
func Load(root string) (*Config, error) {
	cfg, loader := Loader(root)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(cfg.OutDir) {
		cfg.OutDir = filepath.Join(root, cfg.OutDir)
	}
	if !filepath.IsAbs(cfg.StateDB) {
		cfg.StateDB = filepath.Join(root, cfg.StateDB)
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.OutDir == "" {
		return eris.New(`out_dir must not be empty`)
	}

	if cfg.BuildFile == "" {
		return eris.New(`build_file must not be empty`)
	}

	if len(cfg.Sourcelinks.Tags) == 0 {
		return eris.New(`sourcelinks.tags must contain at least one tag`)
	}

	for _, tag := range cfg.Sourcelinks.Tags {
		if tag == "" {
			return eris.New(`sourcelinks.tags must not contain empty tags`)
		}
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
