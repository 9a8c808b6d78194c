package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CaptureConfig tunes the capture session controller.
type CaptureConfig struct {
	SampleRate     int           `mapstructure:"sample_rate"`
	Language       string        `mapstructure:"language"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	IdleCeiling    time.Duration `mapstructure:"idle_ceiling"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"`
	RestartTimeout time.Duration `mapstructure:"restart_timeout"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	ScopeSamples   int           `mapstructure:"scope_samples"`

	// sessions without traffic for SessionTimeout are closed by the sweep
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type AnalyzerConfig struct {
	EnergyThreshold float64 `mapstructure:"energy_threshold"`
	FrameSize       int     `mapstructure:"frame_size"`
	MinDuration     float64 `mapstructure:"min_duration"`
	// 0 means follow capture.sample_rate
	SampleRate int `mapstructure:"sample_rate"`
}

type TranscriberConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Events  int           `mapstructure:"event_buffer"`
}

type AssistantConfig struct {
	Provider     string   `mapstructure:"provider"`
	Model        string   `mapstructure:"model"`
	OpenAIAPIKey string   `mapstructure:"openai_api_key"`
	OpenAIURL    string   `mapstructure:"openai_base_url"`
	GeminiAPIKey string   `mapstructure:"gemini_api_key"`
	OllamaURLs   []string `mapstructure:"ollama_urls"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	// Path is used by the sqlite driver.
	Path string `mapstructure:"path"`
}

func (d DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LiveTTL  time.Duration `mapstructure:"live_ttl"`
}

type JobsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Concurrency  int           `mapstructure:"concurrency"`
	SummaryDelay time.Duration `mapstructure:"summary_delay"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Settings struct {
	Server      ServerConfig      `mapstructure:"server"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Analyzer    AnalyzerConfig    `mapstructure:"analyzer"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Assistant   AssistantConfig   `mapstructure:"assistant"`
	DB          DBConfig          `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Env         string            `mapstructure:"env"`
	Debug       bool              `mapstructure:"debug"`
}

// AnalyzerSampleRate resolves the analyzer rate against the capture rate.
func (s *Settings) AnalyzerSampleRate() int {
	if s.Analyzer.SampleRate > 0 {
		return s.Analyzer.SampleRate
	}
	return s.Capture.SampleRate
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.language", "en")
	v.SetDefault("capture.flush_interval", 150*time.Millisecond)
	v.SetDefault("capture.idle_ceiling", 3*time.Second)
	v.SetDefault("capture.load_timeout", 30*time.Second)
	v.SetDefault("capture.restart_timeout", 2*time.Second)
	v.SetDefault("capture.max_sessions", 1)
	v.SetDefault("capture.scope_samples", 2048)
	v.SetDefault("capture.session_timeout", 30*time.Minute)
	v.SetDefault("capture.sweep_interval", time.Minute)

	v.SetDefault("analyzer.energy_threshold", 0.01)
	v.SetDefault("analyzer.frame_size", 2048)
	v.SetDefault("analyzer.min_duration", 0.1)
	v.SetDefault("analyzer.sample_rate", 0)

	v.SetDefault("transcriber.base_url", "http://localhost:9000")
	v.SetDefault("transcriber.timeout", 30*time.Second)
	v.SetDefault("transcriber.event_buffer", 64)

	v.SetDefault("assistant.provider", "ollama")
	v.SetDefault("assistant.model", "llama3.2")
	v.SetDefault("assistant.ollama_urls", []string{"http://localhost:11434"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "voxcap.db")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.live_ttl", time.Hour)

	v.SetDefault("jobs.enabled", false)
	v.SetDefault("jobs.concurrency", 2)
	v.SetDefault("jobs.summary_delay", 5*time.Second)

	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)
}

// Load reads .env, config_<env>.yaml and VOXCAP_* environment overrides.
// A missing config file is not an error; defaults apply.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFrom(viper.New(), ".")
}

func LoadFrom(v *viper.Viper, dir string) (*Settings, error) {
	setDefaults(v)
	v.SetEnvPrefix("VOXCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config_" + genEnv())
	v.AddConfigPath(dir)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Capture.SampleRate <= 0:
		return fmt.Errorf("capture.sample_rate must be positive, got %d", s.Capture.SampleRate)
	case s.Capture.FlushInterval <= 0:
		return fmt.Errorf("capture.flush_interval must be positive")
	case s.Analyzer.FrameSize <= 0:
		return fmt.Errorf("analyzer.frame_size must be positive, got %d", s.Analyzer.FrameSize)
	case s.DB.Driver != "mysql" && s.DB.Driver != "sqlite":
		return fmt.Errorf("database.driver must be mysql or sqlite, got %q", s.DB.Driver)
	}
	return nil
}

func genEnv() string {
	env := os.Getenv("VOXCAP_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
