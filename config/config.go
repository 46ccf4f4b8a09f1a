package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	Filters FilterConfig  `yaml:"filters"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// BotConfig controla el comportamiento del engine de reconciliación.
type BotConfig struct {
	EntryStakeUSDC        float64  `yaml:"entry_stake_usdc"`
	CycleIntervalSeconds  int      `yaml:"cycle_interval_seconds"`
	EntryWindowMinutes    int      `yaml:"entry_window_minutes"`     // cuánto antes del partido se colocan las entradas
	LockWindowMinutes     int      `yaml:"lock_window_minutes"`      // ventana pre-partido para fijar el precio de inicio
	PartialFillThreshold  float64  `yaml:"partial_fill_threshold"`   // fracción del size que cuenta como fill (1.0 = solo completo)
	RetentionDays         int      `yaml:"retention_days"`           // edad a partir de la cual se purgan registros terminales
	RecreateWarnThreshold int      `yaml:"recreate_warn_threshold"`  // avisar cuando un linaje alcanza tantas recreaciones
	ManualOverrideMarkets []string `yaml:"manual_override_markets"`  // mercados con take-profit gestionado a mano
}

// FilterConfig contiene los filtros de elegibilidad del scanner.
type FilterConfig struct {
	MinVolumeUSDC     float64 `yaml:"min_volume_usdc"`
	MaxTotalPrice     float64 `yaml:"max_total_price"`
	MinStrongPrice    float64 `yaml:"min_strong_price"`
	StartHorizonHours int     `yaml:"start_horizon_hours"`
	StartGraceMinutes int     `yaml:"start_grace_minutes"`
}

// APIConfig contiene los base URLs y credenciales de las APIs.
// Las credenciales nunca van en el YAML, solo por entorno o .env.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	PrivateKey string `yaml:"-"` // clave Polygon para firmar órdenes (POLY_PRIVATE_KEY)
	APIKey     string `yaml:"-"` // credenciales L2 opcionales; si faltan se derivan de la clave
	Secret     string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
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

// CycleInterval devuelve el intervalo de ciclo como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Bot.CycleIntervalSeconds) * time.Second
}

// EntryWindow devuelve la ventana de admisión como time.Duration.
func (c *Config) EntryWindow() time.Duration {
	return time.Duration(c.Bot.EntryWindowMinutes) * time.Minute
}

// LockWindow devuelve la ventana de fijado de precio como time.Duration.
func (c *Config) LockWindow() time.Duration {
	return time.Duration(c.Bot.LockWindowMinutes) * time.Minute
}

// RetentionWindow devuelve la ventana de retención como time.Duration.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Bot.RetentionDays) * 24 * time.Hour
}

// StartHorizon devuelve el horizonte de descubrimiento como time.Duration.
func (c *Config) StartHorizon() time.Duration {
	return time.Duration(c.Filters.StartHorizonHours) * time.Hour
}

// StartGrace devuelve la gracia post-inicio como time.Duration.
func (c *Config) StartGrace() time.Duration {
	return time.Duration(c.Filters.StartGraceMinutes) * time.Minute
}

// ManualOverrides devuelve los mercados con override manual como set.
func (c *Config) ManualOverrides() map[string]bool {
	out := make(map[string]bool, len(c.Bot.ManualOverrideMarkets))
	for _, slug := range c.Bot.ManualOverrideMarkets {
		out[slug] = true
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.API.PrivateKey = v
	}
	if v := os.Getenv("POLY_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("POLY_SECRET"); v != "" {
		cfg.API.Secret = v
	}
	if v := os.Getenv("POLY_PASSPHRASE"); v != "" {
		cfg.API.Passphrase = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.EntryStakeUSDC <= 0 {
		cfg.Bot.EntryStakeUSDC = 10
	}
	if cfg.Bot.CycleIntervalSeconds <= 0 {
		cfg.Bot.CycleIntervalSeconds = 60
	}
	if cfg.Bot.EntryWindowMinutes <= 0 {
		cfg.Bot.EntryWindowMinutes = 60
	}
	if cfg.Bot.LockWindowMinutes <= 0 {
		cfg.Bot.LockWindowMinutes = 180
	}
	if cfg.Bot.PartialFillThreshold <= 0 || cfg.Bot.PartialFillThreshold > 1 {
		cfg.Bot.PartialFillThreshold = 1.0
	}
	if cfg.Bot.RetentionDays <= 0 {
		cfg.Bot.RetentionDays = 7
	}
	if cfg.Bot.RecreateWarnThreshold <= 0 {
		cfg.Bot.RecreateWarnThreshold = 3
	}
	if cfg.Filters.MinVolumeUSDC <= 0 {
		cfg.Filters.MinVolumeUSDC = 1000
	}
	if cfg.Filters.MaxTotalPrice <= 0 {
		cfg.Filters.MaxTotalPrice = 1.05
	}
	if cfg.Filters.MinStrongPrice <= 0 {
		cfg.Filters.MinStrongPrice = 0.50
	}
	if cfg.Filters.StartHorizonHours <= 0 {
		cfg.Filters.StartHorizonHours = 24
	}
	if cfg.Filters.StartGraceMinutes <= 0 {
		cfg.Filters.StartGraceMinutes = 60
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysport.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
