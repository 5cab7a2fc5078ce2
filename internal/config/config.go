package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SKILLGATE_SERVER_HTTP_ADDR.
const EnvPrefix = "SKILLGATE"

var v *viper.Viper

func init() {
	Init()
}

// Init resets the viper instance
func Init() {
	v = viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
}

// Viper returns the viper instance
func Viper() *viper.Viper {
	return v
}

// Server configuration
type Server struct {
	HTTP        HTTPConfig `mapstructure:"http" yaml:"http"`
	GRPC        GRPCConfig `mapstructure:"grpc" yaml:"grpc"`
	CorsOrigins []string   `mapstructure:"cors_origins" yaml:"cors_origins"`
	// MaxBodyBytes caps inbound request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Log configuration
type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

// Agent identifies this gateway in API responses.
type Agent struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Description string `mapstructure:"description" yaml:"description"`
}

// Skills configuration. Path is a skills file (.yaml/.toml) or a directory
// of SKILL.md skills; empty selects the built-in catalog.
type Skills struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Executor bounds every spawned process.
type Executor struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	CPUSeconds     uint64        `mapstructure:"cpu_seconds" yaml:"cpu_seconds"`
	MemoryBytes    uint64        `mapstructure:"memory_bytes" yaml:"memory_bytes"`
}

// Ledger selects and sizes the execution history store.
type Ledger struct {
	StoreType      string `mapstructure:"store_type" yaml:"store_type"` // memory, sqlite
	Capacity       int    `mapstructure:"capacity" yaml:"capacity"`     // 0 keeps everything
	Path           string `mapstructure:"path" yaml:"path"`
	MaxOutputBytes int    `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// Tracing configuration
type Tracing struct {
	Level string `mapstructure:"level" yaml:"level"` // minimal, standard, detailed
}

// Reports writes one Markdown file per finished execution when enabled.
type Reports struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// Config represents the application configuration
type Config struct {
	Server   Server   `mapstructure:"server" yaml:"server"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Agent    Agent    `mapstructure:"agent" yaml:"agent"`
	Skills   Skills   `mapstructure:"skills" yaml:"skills"`
	Executor Executor `mapstructure:"executor" yaml:"executor"`
	Ledger   Ledger   `mapstructure:"ledger" yaml:"ledger"`
	Tracing  Tracing  `mapstructure:"tracing" yaml:"tracing"`
	Reports  Reports  `mapstructure:"reports" yaml:"reports"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.grpc.addr", ":8081")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.path", "./log")
	v.SetDefault("agent.id", "agent-001")
	v.SetDefault("agent.description", "Red team agent with network scanning and fuzzing capabilities")
	v.SetDefault("executor.timeout", 5*time.Minute)
	v.SetDefault("executor.max_output_bytes", 1<<20)
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.cpu_seconds", 0)
	v.SetDefault("executor.memory_bytes", 0)
	v.SetDefault("skills.path", "")
	v.SetDefault("log.debug", false)
	v.SetDefault("ledger.store_type", "memory")
	v.SetDefault("ledger.capacity", 1000)
	v.SetDefault("ledger.path", "./data/ledger.db")
	v.SetDefault("ledger.max_output_bytes", 64<<10)
	v.SetDefault("tracing.level", "standard")
	v.SetDefault("reports.enabled", false)
	v.SetDefault("reports.dir", "./reports")

	// AutomaticEnv only resolves keys viper already knows about; the defaults
	// above register every key so env overrides apply to Unmarshal too.
	v.AutomaticEnv()
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := Viper().Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Executor.MaxConcurrent <= 0 {
		cfg.Executor.MaxConcurrent = 1
	}
	if cfg.Executor.Timeout <= 0 {
		cfg.Executor.Timeout = 5 * time.Minute
	}
	if cfg.Ledger.StoreType == "" {
		cfg.Ledger.StoreType = "memory"
	}
	if len(cfg.Server.CorsOrigins) == 0 {
		cfg.Server.CorsOrigins = []string{"*"}
	}

	return cfg, nil
}
