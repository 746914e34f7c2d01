package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"github.com/knieriem/gpib/gpib232"
	"github.com/knieriem/gpib/netconn"
)

// Config represents the configuration of gpibctl
type Config struct {
	Netconns   netconn.ConfList `yaml:"netconns"`
	Controller ControllerConfig `yaml:"controller"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Log        LogConfig        `yaml:"log"`
}

// ControllerConfig holds GPIB-232CT settings
type ControllerConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	ReadDelay time.Duration `yaml:"readDelay"`
	EOI       bool          `yaml:"eoi"`
	Trace     bool          `yaml:"trace"`
}

// GatewayConfig holds settings of the TCP gateway
type GatewayConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// LogConfig holds logging settings. If File is set, log
// output is written to a file rotated by size.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// EnvFile names the environment variable
// that may point to a configuration file.
const EnvFile = "GPIB_CONFIG"

// Load loads the configuration from file, or from the file named
// by $GPIB_CONFIG if file is empty, and applies environment overrides.
// Without any file, the defaults are used.
func Load(file string) (*Config, error) {
	cfg := getDefaultConfig()

	if file == "" {
		file = os.Getenv(EnvFile)
	}
	if file != "" {
		if err := loadFromFile(cfg, file); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", file, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Netconns: netconn.ConfList{
			{Proto: "asrl", Default: true},
		},
		Controller: ControllerConfig{
			Timeout:   gpib232.DefaultTimeout,
			ReadDelay: gpib232.DefaultReadDelay,
			EOI:       true,
		},
		Gateway: GatewayConfig{
			Addr:        ":4010",
			ReadTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return parse(cfg, data)
}

func parse(cfg *Config, data []byte) error {
	defaults := cfg.Netconns
	cfg.Netconns = nil
	err := yaml.UnmarshalStrict(data, cfg)
	if err != nil {
		return err
	}
	if len(cfg.Netconns) == 0 {
		cfg.Netconns = defaults
		return nil
	}
	for _, c := range cfg.Netconns {
		if err := c.Postprocess(); err != nil {
			return err
		}
	}
	return cfg.Netconns.Postprocess()
}

func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("GPIB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if file := os.Getenv("GPIB_LOG_FILE"); file != "" {
		cfg.Log.File = file
	}
	if t := os.Getenv("GPIB_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			cfg.Controller.Timeout = d
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Controller.Timeout <= 0 {
		return fmt.Errorf("invalid controller timeout: %v", cfg.Controller.Timeout)
	}
	if cfg.Controller.ReadDelay < 0 {
		return fmt.Errorf("invalid read delay: %v", cfg.Controller.ReadDelay)
	}
	if _, err := cfg.Log.level(); err != nil {
		return err
	}
	return nil
}

// ControllerOptions returns the options for gpib232.New.
func (cfg *Config) ControllerOptions(log *zap.Logger) []gpib232.Option {
	opts := []gpib232.Option{
		gpib232.WithLogger(log),
		gpib232.WithTimeout(cfg.Controller.Timeout),
		gpib232.WithReadDelay(cfg.Controller.ReadDelay),
		gpib232.WithEOI(cfg.Controller.EOI),
	}
	if cfg.Controller.Trace {
		sugar := log.Sugar()
		opts = append(opts, gpib232.WithTracef(func(format string, a ...interface{}) {
			sugar.Debugf(format, a...)
		}))
	}
	return opts
}

func (l *LogConfig) level() (lvl zapcore.Level, err error) {
	err = lvl.UnmarshalText([]byte(l.Level))
	if err != nil {
		err = fmt.Errorf("invalid log level %q", l.Level)
	}
	return
}

// NewLogger builds a console logger writing to stderr,
// or to the configured log file.
func (l *LogConfig) NewLogger() (*zap.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder

	var w zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if l.File != "" {
		w = zapcore.AddSync(&lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
			Compress:   l.Compress,
		})
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), w, lvl)
	return zap.New(core), nil
}
