package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StorageBasePath string
	StorageBaseURL  string
	StorageMaxBytes int64

	GeoIPDBPath   string
	DefaultLocale string

	// JWTSecret enables bearer auth when set; empty keeps the API open.
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMinute int

	// Provider chains in fixed priority order. The first available provider
	// is attempted; later entries are fallbacks.
	VideoProviders  []string
	SpeechProviders []string
	ScriptProviders []string

	// PlaceholderEnabled lets the video chain fall through to a deterministic
	// placeholder artifact instead of failing the job. Off by default; never
	// inferred from the environment name.
	PlaceholderEnabled bool

	GeminiBaseURL     string
	GeminiModel       string
	VeoModel          string
	DashScopeBaseURL  string
	WanModel          string
	QwenTTSModel      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITTSModel    string
	OpenAITTSVoice    string
	ElevenLabsBaseURL string
	ElevenLabsVoiceID string
	RunPodBaseURL     string
	RunPodEndpointID  string

	TikTokBaseURL   string
	GraphBaseURL    string
	InstagramUserID string
	FacebookPageID  string

	FFmpegPath    string
	WatermarkPath string
	MusicPath     string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	GenPollInterval        time.Duration
	GenPollMaxAttempts     int
	PublishPollInterval    time.Duration
	PublishPollMaxAttempts int

	DBMaxConns int32

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBasePath: getEnv("STORAGE_BASE_PATH", "./data/storage"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StorageMaxBytes: getEnvInt64("STORAGE_MAX_BYTES", 0),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),

		JWTSecret:          os.Getenv("AUTH_JWT_SECRET"),
		AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		VideoProviders:  getEnvList("VIDEO_PROVIDERS", "veo,wan,runpod"),
		SpeechProviders: getEnvList("SPEECH_PROVIDERS", "elevenlabs,openai,qwen"),
		ScriptProviders: getEnvList("SCRIPT_PROVIDERS", "gemini,openai"),

		PlaceholderEnabled: getEnvBool("VIDEO_PLACEHOLDER_ENABLED", false),

		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		VeoModel:          getEnv("VEO_MODEL", "veo-2.0-generate-001"),
		DashScopeBaseURL:  getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
		WanModel:          getEnv("WAN_MODEL", "wan2.1-t2v-turbo"),
		QwenTTSModel:      getEnv("QWEN_TTS_MODEL", "qwen-tts"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITTSModel:    getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:    getEnv("OPENAI_TTS_VOICE", "alloy"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		RunPodBaseURL:     getEnv("RUNPOD_BASE_URL", "https://api.runpod.ai/v2"),
		RunPodEndpointID:  os.Getenv("RUNPOD_ENDPOINT_ID"),

		TikTokBaseURL:   getEnv("TIKTOK_BASE_URL", "https://open.tiktokapis.com/v2"),
		GraphBaseURL:    getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),
		InstagramUserID: os.Getenv("INSTAGRAM_USER_ID"),
		FacebookPageID:  os.Getenv("FACEBOOK_PAGE_ID"),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		WatermarkPath: os.Getenv("WATERMARK_PATH"),
		MusicPath:     os.Getenv("MUSIC_PATH"),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)),

		GenPollInterval:        time.Second * time.Duration(getEnvInt("GEN_POLL_INTERVAL_SECONDS", 5)),
		GenPollMaxAttempts:     getEnvInt("GEN_POLL_MAX_ATTEMPTS", 120),
		PublishPollInterval:    time.Second * time.Duration(getEnvInt("PUBLISH_POLL_INTERVAL_SECONDS", 5)),
		PublishPollMaxAttempts: getEnvInt("PUBLISH_POLL_MAX_ATTEMPTS", 60),

		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := url.Parse(cfg.StorageBaseURL); err != nil {
		return nil, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
