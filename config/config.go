package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/strategy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de alphaquant.
type Config struct {
	Broker     BrokerConfig          `yaml:"broker"`
	Storage    StorageConfig         `yaml:"storage"`
	Dashboard  DashboardConfig       `yaml:"dashboard"`
	Runner     RunnerConfig          `yaml:"runner"`
	Log        LogConfig             `yaml:"log"`
	Strategies []strategy.Definition `yaml:"strategies"`
}

// BrokerConfig apunta al gateway REST del broker.
type BrokerConfig struct {
	BaseURL        string `yaml:"base_url"`
	Account        string `yaml:"account"`
	Token          string `yaml:"token"` // mejor en .env: BROKER_TOKEN
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Paper          bool   `yaml:"paper"` // datos reales, ejecución simulada
}

// StorageConfig controla dónde se persisten los trade logs.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// DashboardConfig controla el servidor HTTP.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// RunnerConfig controla el loop de ejecución.
type RunnerConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Workers         int    `yaml:"workers"` // estrategias en paralelo (0 = NumCPU)
	StopFile        string `yaml:"stop_file"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Interval devuelve el intervalo del loop como time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Runner.IntervalSeconds) * time.Second
}

// BrokerTimeout devuelve el timeout HTTP del broker.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("BROKER_ACCOUNT"); v != "" {
		cfg.Broker.Account = v
	}
	if v := os.Getenv("BROKER_TOKEN"); v != "" {
		cfg.Broker.Token = v
	}
	if v := os.Getenv("DASHBOARD_ADDR"); v != "" {
		cfg.Dashboard.Addr = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "http://127.0.0.1:5000"
	}
	if cfg.Broker.TimeoutSeconds <= 0 {
		cfg.Broker.TimeoutSeconds = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "alphaquant.db"
	}
	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = ":8080"
	}
	if cfg.Runner.IntervalSeconds <= 0 {
		cfg.Runner.IntervalSeconds = 300
	}
	if cfg.Runner.StopFile == "" {
		cfg.Runner.StopFile = "STOP"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
