package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/adapters/gemini"
	"github.com/satriahrh/oralexam/internal/audio"
	"github.com/satriahrh/oralexam/internal/live"
	"github.com/satriahrh/oralexam/usecase"
)

const (
	defaultPort             = "8080"
	defaultModel            = "models/gemini-2.0-flash-live-001" // Live-capable model
	defaultVoice            = "Puck"                             // Prebuilt voice
	defaultHardLimit        = 300 * time.Second                  // Hard session limit
	defaultWarningThreshold = 270 * time.Second                  // Soft warning point
	defaultTickInterval     = time.Second                        // Deadline tick
	defaultCaptureRate      = 48000                              // Native microphone rate
	defaultDatabase         = "oralexam"
	defaultLogLevel         = "info"

	BackendPortAudio = "portaudio"
	BackendBrowser   = "browser"
)

// Config holds process configuration
// Required fields:
// - GeminiAPIKey: API key for the live model
// Optional fields fall back to defaults in ApplyDefaults.
// Results go to MongoDB when MongoURI is set, to an embedded store in
// ResultsDir otherwise, and to process memory when both are empty.
// An empty HostJWTSecret disables host authentication.
type Config struct {
	Port             string
	GeminiAPIKey     string
	GeminiLiveURL    string
	GeminiModel      string
	GeminiVoice      string
	HardLimit        time.Duration
	WarningThreshold time.Duration
	TickInterval     time.Duration
	AudioBackend     string
	CaptureRate      int
	HostJWTSecret    string
	MongoURI         string
	MongoDatabase    string
	ResultsDir       string
	PersonaFile      string
	LogLevel         string

	Persona *Persona
}

// NewConfigFromEnv reads the configuration from environment variables
func NewConfigFromEnv() (*Config, error) {
	config := &Config{
		Port:          os.Getenv("PORT"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiLiveURL: os.Getenv("GEMINI_LIVE_URL"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		GeminiVoice:   os.Getenv("GEMINI_VOICE"),
		AudioBackend:  strings.ToLower(os.Getenv("AUDIO_BACKEND")),
		HostJWTSecret: os.Getenv("HOST_JWT_SECRET"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: os.Getenv("MONGODB_DATABASE"),
		ResultsDir:    os.Getenv("RESULTS_DIR"),
		PersonaFile:   os.Getenv("PERSONA_FILE"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}

	var err error
	if config.HardLimit, err = durationEnv("SESSION_HARD_LIMIT"); err != nil {
		return nil, err
	}
	if config.WarningThreshold, err = durationEnv("SESSION_WARNING_THRESHOLD"); err != nil {
		return nil, err
	}
	if config.TickInterval, err = durationEnv("SESSION_TICK_INTERVAL"); err != nil {
		return nil, err
	}
	if rate := os.Getenv("CAPTURE_SAMPLE_RATE"); rate != "" {
		if config.CaptureRate, err = strconv.Atoi(rate); err != nil {
			return nil, fmt.Errorf("CAPTURE_SAMPLE_RATE must be an integer, got %q", rate)
		}
	}

	if config.PersonaFile != "" {
		if config.Persona, err = LoadPersona(config.PersonaFile); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// durationEnv accepts Go durations ("4m30s") or plain seconds ("270")
func durationEnv(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, raw)
	}
	return d, nil
}

// ApplyDefaults fills unset fields and logs each default applied
func (c *Config) ApplyDefaults(logger *zap.Logger) {
	if c.Port == "" {
		c.Port = defaultPort
		logger.Info("Using default port", zap.String("port", c.Port))
	}
	if c.GeminiLiveURL == "" {
		c.GeminiLiveURL = gemini.DefaultLiveURL
	}
	if c.GeminiModel == "" {
		c.GeminiModel = defaultModel
		logger.Info("Using default model", zap.String("model", c.GeminiModel))
	}
	if c.GeminiVoice == "" {
		c.GeminiVoice = defaultVoice
		if c.Persona != nil && c.Persona.Voice != "" {
			c.GeminiVoice = c.Persona.Voice
		}
		logger.Info("Using voice", zap.String("voice", c.GeminiVoice))
	}
	if c.HardLimit == 0 {
		c.HardLimit = defaultHardLimit
		logger.Info("Using default hard limit", zap.Duration("hardLimit", c.HardLimit))
	}
	if c.WarningThreshold == 0 {
		c.WarningThreshold = defaultWarningThreshold
		if c.WarningThreshold > c.HardLimit {
			c.WarningThreshold = c.HardLimit * 9 / 10
		}
		logger.Info("Using default warning threshold", zap.Duration("warningThreshold", c.WarningThreshold))
	}
	if c.TickInterval == 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.AudioBackend == "" {
		c.AudioBackend = BackendBrowser
		logger.Info("Using default audio backend", zap.String("audioBackend", c.AudioBackend))
	}
	if c.CaptureRate == 0 {
		c.CaptureRate = defaultCaptureRate
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = defaultDatabase
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate rejects out-of-range values. Call it after ApplyDefaults.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.HardLimit <= 0 {
		return fmt.Errorf("hard limit must be positive, got %v", c.HardLimit)
	}
	if c.WarningThreshold <= 0 || c.WarningThreshold > c.HardLimit {
		return fmt.Errorf("warning threshold must be within (0, %v], got %v", c.HardLimit, c.WarningThreshold)
	}
	if c.TickInterval <= 0 || c.TickInterval > c.HardLimit {
		return fmt.Errorf("tick interval must be within (0, %v], got %v", c.HardLimit, c.TickInterval)
	}
	if c.AudioBackend != BackendPortAudio && c.AudioBackend != BackendBrowser {
		return fmt.Errorf("audio backend must be %q or %q, got %q", BackendPortAudio, BackendBrowser, c.AudioBackend)
	}
	if c.CaptureRate < live.InputSampleRate {
		return fmt.Errorf("capture sample rate must be at least %d, got %d", live.InputSampleRate, c.CaptureRate)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Gemini returns the live dialer configuration
func (c *Config) Gemini() gemini.Config {
	return gemini.Config{APIKey: c.GeminiAPIKey, URL: c.GeminiLiveURL}
}

// Engine returns the session controller configuration
func (c *Config) Engine() usecase.EngineConfig {
	setup := live.SetupOptions{
		Model: c.GeminiModel,
		Voice: c.GeminiVoice,
	}
	if c.Persona != nil {
		setup.Instruction = c.Persona.Instruction
		setup.LanguageCode = c.Persona.Language
	}
	return usecase.EngineConfig{
		Setup: setup,
		Deadline: usecase.SupervisorConfig{
			HardLimit:        c.HardLimit,
			WarningThreshold: c.WarningThreshold,
			TickInterval:     c.TickInterval,
		},
		Capture: audio.CaptureConfig{
			TargetRate: live.InputSampleRate,
			ChunkSize:  usecase.DefaultChunkSize,
		},
	}
}
