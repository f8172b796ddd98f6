// Package config handles loading and validating the voiceloop configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for voiceloop.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Audio      AudioConfig      `mapstructure:"audio"`
	STT        STTConfig        `mapstructure:"stt"`
	LLM        LLMConfig        `mapstructure:"llm"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each surface served by `voiceloop serve`.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC health surface.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket surface.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AudioConfig configures capture and playback.
type AudioConfig struct {
	SampleRate    int           `mapstructure:"sample_rate"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	Input         InputConfig   `mapstructure:"input"`
	Output        OutputConfig  `mapstructure:"output"`
}

// InputConfig selects the microphone driver.
type InputConfig struct {
	Backend      string `mapstructure:"backend"` // "arecord" or "ffmpeg"
	Device       string `mapstructure:"device"`
	FFmpegFormat string `mapstructure:"ffmpeg_format"` // alsa, pulse, avfoundation
}

// OutputConfig selects the playback command.
type OutputConfig struct {
	Backend string `mapstructure:"backend"` // "aplay" or "ffplay"
	Device  string `mapstructure:"device"`
}

// STTConfig configures the Whisper-compatible transcription endpoint.
type STTConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Type      string        `mapstructure:"type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Language  string        `mapstructure:"language"` // ISO-639-1 hint, empty for auto-detect
	VADFilter bool          `mapstructure:"vad_filter"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures the reply generator.
//
// Endpoint may be any OpenAI-compatible /chat/completions URL (OpenAI, Ollama,
// vLLM, llama.cpp server) or an Ollama /api/generate URL.
type LLMConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	HistoryTurns int           `mapstructure:"history_turns"` // 0 keeps every call independent
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend  string      `mapstructure:"backend"`  // "piper"
	Language string      `mapstructure:"language"` // voice language when transcription detects none
	Voice    string      `mapstructure:"voice"`
	Piper    PiperConfig `mapstructure:"piper"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance set Endpoint. Endpoints maps ISO-639-1 codes to
// per-language Wyoming endpoints and takes precedence; Endpoint is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

// ArtifactsConfig controls persistence of the last turn's audio and text.
type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	OutputDir string `mapstructure:"output_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voiceloop.yaml, ./configs/voiceloop.yaml, /etc/voiceloop/voiceloop.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voiceloop")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voiceloop")
	}

	// Environment variables: VOICELOOP_AUDIO_SAMPLE_RATE, VOICELOOP_LLM_MODEL, etc.
	v.SetEnvPrefix("VOICELOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}")
	cfg.STT.APIKey = resolveEnvRef(cfg.STT.APIKey)
	cfg.LLM.APIKey = resolveEnvRef(cfg.LLM.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.max_duration", 2*time.Minute)
	v.SetDefault("audio.block_duration", 100*time.Millisecond)
	v.SetDefault("audio.input.backend", "arecord")
	v.SetDefault("audio.input.device", "default")
	v.SetDefault("audio.input.ffmpeg_format", "alsa")
	v.SetDefault("audio.output.backend", "aplay")
	v.SetDefault("stt.endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("stt.type", "openai")
	v.SetDefault("stt.model", "base")
	v.SetDefault("stt.timeout", 2*time.Minute)
	v.SetDefault("llm.endpoint", "http://localhost:11434/v1/chat/completions")
	v.SetDefault("llm.model", "qwen2:7b")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.history_turns", 0)
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.language", "en")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.timeout", time.Minute)
	v.SetDefault("artifacts.enabled", true)
	v.SetDefault("artifacts.output_dir", ".")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.max_duration must be positive, got %s", c.Audio.MaxDuration))
	}
	if c.Audio.BlockDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_duration must be positive, got %s", c.Audio.BlockDuration))
	}
	if !oneOf(c.Audio.Input.Backend, "arecord", "ffmpeg") {
		errs = append(errs, fmt.Errorf("audio.input.backend: unknown backend %q", c.Audio.Input.Backend))
	}
	if !oneOf(c.Audio.Output.Backend, "aplay", "ffplay") {
		errs = append(errs, fmt.Errorf("audio.output.backend: unknown backend %q", c.Audio.Output.Backend))
	}
	if c.STT.Endpoint == "" {
		errs = append(errs, errors.New("stt.endpoint is required"))
	}
	if !oneOf(c.STT.Type, "openai", "asr") {
		errs = append(errs, fmt.Errorf("stt.type: unknown type %q", c.STT.Type))
	}
	if c.LLM.Endpoint == "" {
		errs = append(errs, errors.New("llm.endpoint is required"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("llm.history_turns must not be negative, got %d", c.LLM.HistoryTurns))
	}
	if c.TTS.Backend != "piper" {
		errs = append(errs, fmt.Errorf("tts.backend: unknown backend %q", c.TTS.Backend))
	}
	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		errs = append(errs, errors.New("artifacts.output_dir is required when artifacts are enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func oneOf(val string, allowed ...string) bool {
	for _, a := range allowed {
		if val == a {
			return true
		}
	}
	return false
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}
	slog.SetDefault(slog.New(newHandler(out, cfg)))
}

func newHandler(w io.Writer, cfg LoggingConfig) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
