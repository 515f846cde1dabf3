package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Store      StoreConfig
	Worker     WorkerConfig
	Scratch    ScratchConfig
	Media      MediaConfig
	WhisperAPI WhisperAPIConfig
	Whisper    LocalWhisperConfig
	Anthropic  AnthropicConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	Content    ContentConfig
	R2         R2Config
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Driver string // "memory" or "redis"
	TTL    int    // hours a terminal job is kept
}

// WorkerConfig selects how pipeline runs are dispatched.
type WorkerConfig struct {
	Mode        string // "local" or "asynq"
	Concurrency int
}

type ScratchConfig struct {
	Dir string
}

// MediaConfig holds paths to the external media tools.
type MediaConfig struct {
	YtdlpPath   string
	FFmpegPath  string
	FFprobePath string
}

type WhisperAPIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxFileBytes int64
	ChunkSeconds int
	Timeout      int // seconds
}

type LocalWhisperConfig struct {
	Enabled       bool
	BinaryPath    string
	ModelPath     string
	VADModelPath  string
	InitialPrompt string
	Threads       int
}

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   int // seconds
}

type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Timeout         int // seconds
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout int // seconds
}

type ContentConfig struct {
	PrimaryLanguage string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RateLimitConfig struct {
	UploadPerHour   int
	GeneratePerHour int
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("ANTHROPIC_API_KEY")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.ttl", "STORE_TTL_HOURS")
	_ = viper.BindEnv("worker.mode", "WORKER_MODE")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("scratch.dir", "UPLOAD_DIR")
	_ = viper.BindEnv("media.ytdlp_path", "YTDLP_PATH")
	_ = viper.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("media.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("whisper_api.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("whisper_api.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("whisper_api.model", "WHISPER_API_MODEL")
	_ = viper.BindEnv("whisper_api.timeout", "WHISPER_API_TIMEOUT")
	_ = viper.BindEnv("whisper.enabled", "USE_LOCAL_WHISPER")
	_ = viper.BindEnv("whisper.binary_path", "WHISPER_BINARY")
	_ = viper.BindEnv("whisper.model_path", "WHISPER_MODEL_PATH")
	_ = viper.BindEnv("whisper.vad_model_path", "WHISPER_VAD_MODEL_PATH")
	_ = viper.BindEnv("whisper.initial_prompt", "WHISPER_INITIAL_PROMPT")
	_ = viper.BindEnv("whisper.threads", "WHISPER_THREADS")
	_ = viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("anthropic.base_url", "ANTHROPIC_BASE_URL")
	_ = viper.BindEnv("anthropic.model", "ANTHROPIC_MODEL")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("ollama.base_url", "OLLAMA_BASE_URL")
	_ = viper.BindEnv("ollama.model", "OLLAMA_MODEL")
	_ = viper.BindEnv("content.primary_language", "PRIMARY_LANGUAGE")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	viper.SetDefault("server.port", "8001")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.ttl", 24)
	viper.SetDefault("worker.mode", "local")
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("scratch.dir", "./uploads")
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.generate_per_hour", 20)

	// Media tool defaults
	viper.SetDefault("media.ytdlp_path", "yt-dlp")
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.ffprobe_path", "ffprobe")

	// Whisper API defaults (25MB provider ceiling, 10 minute chunks)
	viper.SetDefault("whisper_api.base_url", "https://api.openai.com/v1")
	viper.SetDefault("whisper_api.model", "whisper-1")
	viper.SetDefault("whisper_api.max_file_bytes", 25*1024*1024)
	viper.SetDefault("whisper_api.chunk_seconds", 600)
	viper.SetDefault("whisper_api.timeout", 300)

	// Local whisper.cpp defaults
	viper.SetDefault("whisper.enabled", true)
	viper.SetDefault("whisper.binary_path", "whisper-cli")
	viper.SetDefault("whisper.vad_model_path", "./models/ggml-silero-v5.1.2.bin")
	viper.SetDefault("whisper.initial_prompt", "AI, content, creator, SNS, video, blog, tweet, YouTube")
	viper.SetDefault("whisper.threads", 4)

	// LLM defaults
	viper.SetDefault("anthropic.base_url", "https://api.anthropic.com/v1")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("anthropic.max_tokens", 4096)
	viper.SetDefault("anthropic.timeout", 120)
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")
	viper.SetDefault("gemini.max_output_tokens", 8192)
	viper.SetDefault("gemini.timeout", 60)
	viper.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	viper.SetDefault("ollama.model", "llama3.2")
	viper.SetDefault("ollama.timeout", 120)
	viper.SetDefault("content.primary_language", "ja")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver: viper.GetString("store.driver"),
			TTL:    viper.GetInt("store.ttl"),
		},
		Worker: WorkerConfig{
			Mode:        viper.GetString("worker.mode"),
			Concurrency: viper.GetInt("worker.concurrency"),
		},
		Scratch: ScratchConfig{
			Dir: viper.GetString("scratch.dir"),
		},
		Media: MediaConfig{
			YtdlpPath:   viper.GetString("media.ytdlp_path"),
			FFmpegPath:  viper.GetString("media.ffmpeg_path"),
			FFprobePath: viper.GetString("media.ffprobe_path"),
		},
		WhisperAPI: WhisperAPIConfig{
			APIKey:       strings.TrimSpace(viper.GetString("whisper_api.api_key")),
			BaseURL:      viper.GetString("whisper_api.base_url"),
			Model:        viper.GetString("whisper_api.model"),
			MaxFileBytes: viper.GetInt64("whisper_api.max_file_bytes"),
			ChunkSeconds: viper.GetInt("whisper_api.chunk_seconds"),
			Timeout:      viper.GetInt("whisper_api.timeout"),
		},
		Whisper: LocalWhisperConfig{
			Enabled:       viper.GetBool("whisper.enabled"),
			BinaryPath:    viper.GetString("whisper.binary_path"),
			ModelPath:     viper.GetString("whisper.model_path"),
			VADModelPath:  viper.GetString("whisper.vad_model_path"),
			InitialPrompt: viper.GetString("whisper.initial_prompt"),
			Threads:       viper.GetInt("whisper.threads"),
		},
		Anthropic: AnthropicConfig{
			APIKey:    strings.TrimSpace(viper.GetString("anthropic.api_key")),
			BaseURL:   viper.GetString("anthropic.base_url"),
			Model:     viper.GetString("anthropic.model"),
			MaxTokens: viper.GetInt("anthropic.max_tokens"),
			Timeout:   viper.GetInt("anthropic.timeout"),
		},
		Gemini: GeminiConfig{
			APIKey:          strings.TrimSpace(viper.GetString("gemini.api_key")),
			BaseURL:         viper.GetString("gemini.base_url"),
			Model:           viper.GetString("gemini.model"),
			MaxOutputTokens: viper.GetInt("gemini.max_output_tokens"),
			Timeout:         viper.GetInt("gemini.timeout"),
		},
		Ollama: OllamaConfig{
			BaseURL: viper.GetString("ollama.base_url"),
			Model:   viper.GetString("ollama.model"),
			Timeout: viper.GetInt("ollama.timeout"),
		},
		Content: ContentConfig{
			PrimaryLanguage: viper.GetString("content.primary_language"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour:   viper.GetInt("ratelimit.upload_per_hour"),
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
	}

	return cfg, nil
}
