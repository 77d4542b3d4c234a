package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/copybot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Mirror   MirrorConfig   `yaml:"mirror"`
	Kalshi   KalshiConfig   `yaml:"kalshi"`
	Executor ExecutorConfig `yaml:"executor"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// MirrorConfig son los valores iniciales de la configuración editable en caliente.
type MirrorConfig struct {
	TargetUserID      string `yaml:"target_user_id"`
	MaxCopyAmount     int    `yaml:"max_copy_amount"`
	PollingIntervalMs int    `yaml:"polling_interval_ms"`
	AutoCopyEnabled   bool   `yaml:"auto_copy_enabled"`
	RecopyAfterReset  bool   `yaml:"recopy_after_reset"`
}

// KalshiConfig contiene el endpoint y las credenciales. Las credenciales
// solo se leen de variables de entorno (KALSHI_EMAIL, KALSHI_PASSWORD).
type KalshiConfig struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"-"`
	Password string `yaml:"-"`
}

// ExecutorConfig controla reintentos y timeouts contra el exchange.
type ExecutorConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	BaseBackoffMs int `yaml:"base_backoff_ms"`
	CallTimeoutMs int `yaml:"call_timeout_ms"`
}

// HTTPConfig controla el servidor de estado.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // vacío desactiva el servidor
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // si no está vacío, además rota a este archivo
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
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

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse interpreta un YAML ya leído, aplica el entorno y los defaults, y valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := cfg.Settings().Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Settings devuelve la configuración inicial del mirror.
func (c *Config) Settings() domain.Settings {
	return domain.Settings{
		TargetUserID:      c.Mirror.TargetUserID,
		MaxCopyAmount:     c.Mirror.MaxCopyAmount,
		PollingIntervalMs: c.Mirror.PollingIntervalMs,
		AutoCopyEnabled:   c.Mirror.AutoCopyEnabled,
		RecopyAfterReset:  c.Mirror.RecopyAfterReset,
	}
}

// CallTimeout devuelve el timeout por llamada al exchange.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Executor.CallTimeoutMs) * time.Millisecond
}

// BaseBackoff devuelve la espera base entre reintentos de órdenes.
func (c *Config) BaseBackoff() time.Duration {
	return time.Duration(c.Executor.BaseBackoffMs) * time.Millisecond
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	cfg.Kalshi.Email = os.Getenv("KALSHI_EMAIL")
	cfg.Kalshi.Password = os.Getenv("KALSHI_PASSWORD")

	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.Kalshi.BaseURL = v
	}
	if v := os.Getenv("TARGET_USER_ID"); v != "" {
		cfg.Mirror.TargetUserID = v
	}
	if v := os.Getenv("MAX_COPY_AMOUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.Load: MAX_COPY_AMOUNT %q: %w", v, err)
		}
		cfg.Mirror.MaxCopyAmount = n
	}
	if v := os.Getenv("POLLING_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config.Load: POLLING_INTERVAL_MS %q: %w", v, err)
		}
		cfg.Mirror.PollingIntervalMs = n
	}
	if v := os.Getenv("AUTO_COPY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config.Load: AUTO_COPY_ENABLED %q: %w", v, err)
		}
		cfg.Mirror.AutoCopyEnabled = b
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	cfg.Mirror.TargetUserID = strings.TrimSpace(cfg.Mirror.TargetUserID)
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Mirror.MaxCopyAmount == 0 {
		cfg.Mirror.MaxCopyAmount = 10
	}
	if cfg.Mirror.PollingIntervalMs == 0 {
		cfg.Mirror.PollingIntervalMs = 5000
	}
	if cfg.Kalshi.BaseURL == "" {
		cfg.Kalshi.BaseURL = "https://trading-api.kalshi.com/trade-api/v2"
	}
	if cfg.Executor.MaxAttempts <= 0 {
		cfg.Executor.MaxAttempts = 3
	}
	if cfg.Executor.BaseBackoffMs <= 0 {
		cfg.Executor.BaseBackoffMs = 500
	}
	if cfg.Executor.CallTimeoutMs <= 0 {
		cfg.Executor.CallTimeoutMs = 10_000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "copybot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 14
	}
}
