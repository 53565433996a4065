package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告: 无法加载.env文件: %v", err)
	}
}

// Config 应用配置
type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	MinIO    MinIOConfig
	Google   GoogleConfig
	TTS      TTSConfig
	Music    MusicConfig
	Radio    RadioConfig
	Schedule ScheduleConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

// LLMConfig 选择LLM提供商
type LLMConfig struct {
	Provider string // "openai" 或 "gemini"
	Language string
	Timezone string
}

// OpenAIConfig OpenAI兼容接口配置
type OpenAIConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	ThinkingModel string
	MaxTokens     int
	Timeout       time.Duration
}

// GeminiConfig Gemini配置
type GeminiConfig struct {
	APIKey        string
	Model         string
	ThinkingModel string
}

// MinIOConfig MinIO存储配置
type MinIOConfig struct {
	Endpoint        string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
}

// GoogleConfig Google API配置 (OAuth客户端, 项目, 地图)
type GoogleConfig struct {
	ProjectID          string
	Location           string
	OAuthClientID      string
	OAuthClientSecret  string
	MapsAPIKey         string
	WeatherBaseURL     string
	CredentialsFile    string
	ResearchWebTimeout time.Duration
}

// TTSConfig 文本转语音配置
type TTSConfig struct {
	Provider string // "longform", "speech", "polly"
	LongForm LongFormTTSConfig
	Speech   SpeechTTSConfig
	Polly    PollyTTSConfig
}

// LongFormTTSConfig Google Cloud Text-to-Speech配置
type LongFormTTSConfig struct {
	LanguageCode string
	DefaultVoice string
	ChunkChars   int
	Timeout      time.Duration
}

// SpeechTTSConfig LLM原生语音合成配置
type SpeechTTSConfig struct {
	Model         string
	ProModel      string
	FallbackModel string
	DefaultVoice  string
}

// PollyTTSConfig Amazon Polly配置
type PollyTTSConfig struct {
	Region     string
	VoiceID    string
	Engine     string
	ChunkChars int
}

// MusicConfig 音乐生成配置
type MusicConfig struct {
	Provider string // "lyria" 或 "none"
	Model    string
	Location string
}

// RadioConfig 节目生成流程的可调参数
type RadioConfig struct {
	SampleRate int
	MP3Bitrate string

	WriterMaxTurns  int
	WriterMaxChars  int
	WriterMaxPasses int
	WriterRetries   int

	SilenceRetakes     int
	SilenceThresholdDB float64
	SilenceMax         time.Duration

	RecorderConcurrency int
	ComposerConcurrency int

	Crossfade   time.Duration
	Tail        time.Duration
	MusicGap    time.Duration
	DuckDB      float64
	LeadBars    int
	DefaultLead time.Duration
}

// ScheduleConfig 定时广播配置
type ScheduleConfig struct {
	ProgramIDs      []string
	DefaultSchedule string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnvOrDefault("APP_PORT", "3001"),
			Env:         getEnvOrDefault("WORKER_ENV", "production"),
			CORSOrigins: getEnvListOrDefault("CORS_ORIGINS", []string{"*"}),
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			Language: getEnvOrDefault("RADIO_LANGUAGE", "zh-CN"),
			Timezone: getEnvOrDefault("RADIO_TIMEZONE", "Asia/Shanghai"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:       getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:        getEnvOrDefault("OPENAI_API_KEY", ""),
			Model:         getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			ThinkingModel: getEnvOrDefault("OPENAI_THINKING_MODEL", ""),
			MaxTokens:     getEnvIntOrDefault("OPENAI_MAX_TOKENS", 16384),
			Timeout:       getEnvDurationOrDefault("OPENAI_TIMEOUT", 5*time.Minute),
		},
		Gemini: GeminiConfig{
			APIKey:        getEnvOrDefault("GEMINI_API_KEY", ""),
			Model:         getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
			ThinkingModel: getEnvOrDefault("GEMINI_THINKING_MODEL", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnvOrDefault("MINIO_ENDPOINT", "http://localhost:9000"),
			BucketName:      getEnvOrDefault("MINIO_BUCKET_NAME", "radio-station"),
			AccessKeyID:     getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		},
		Google: GoogleConfig{
			ProjectID:          getEnvOrDefault("GOOGLE_CLOUD_PROJECT", ""),
			Location:           getEnvOrDefault("GOOGLE_CLOUD_LOCATION", "us-central1"),
			OAuthClientID:      getEnvOrDefault("GOOGLE_OAUTH_CLIENT_ID", ""),
			OAuthClientSecret:  getEnvOrDefault("GOOGLE_OAUTH_CLIENT_SECRET", ""),
			MapsAPIKey:         getEnvOrDefault("GOOGLE_MAPS_API_KEY", ""),
			WeatherBaseURL:     getEnvOrDefault("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			CredentialsFile:    getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
			ResearchWebTimeout: getEnvDurationOrDefault("RESEARCH_WEB_TIMEOUT", 300*time.Second),
		},
		TTS: TTSConfig{
			Provider: getEnvOrDefault("TTS_PROVIDER", "speech"),
			LongForm: LongFormTTSConfig{
				LanguageCode: getEnvOrDefault("LONGFORM_TTS_LANGUAGE", "cmn-CN"),
				DefaultVoice: getEnvOrDefault("LONGFORM_TTS_VOICE", "cmn-CN-Chirp3-HD-Achird"),
				ChunkChars:   getEnvIntOrDefault("LONGFORM_TTS_CHUNK_CHARS", 2000),
				Timeout:      getEnvDurationOrDefault("LONGFORM_TTS_TIMEOUT", 1200*time.Second),
			},
			Speech: SpeechTTSConfig{
				Model:         getEnvOrDefault("SPEECH_TTS_MODEL", "gpt-4o-mini-tts"),
				ProModel:      getEnvOrDefault("SPEECH_TTS_PRO_MODEL", "tts-1-hd"),
				FallbackModel: getEnvOrDefault("SPEECH_TTS_FALLBACK_MODEL", "tts-1"),
				DefaultVoice:  getEnvOrDefault("SPEECH_TTS_VOICE", "alloy"),
			},
			Polly: PollyTTSConfig{
				Region:     getEnvOrDefault("POLLY_REGION", getEnvOrDefault("AWS_REGION", "us-east-1")),
				VoiceID:    getEnvOrDefault("POLLY_VOICE", "Zhiyu"),
				Engine:     getEnvOrDefault("POLLY_ENGINE", "neural"),
				ChunkChars: getEnvIntOrDefault("POLLY_CHUNK_CHARS", 2500),
			},
		},
		Music: MusicConfig{
			Provider: getEnvOrDefault("MUSIC_PROVIDER", "lyria"),
			Model:    getEnvOrDefault("MUSIC_MODEL", "lyria-002"),
			Location: getEnvOrDefault("MUSIC_LOCATION", "us-central1"),
		},
		Radio: RadioConfig{
			SampleRate: getEnvIntOrDefault("RADIO_SAMPLE_RATE", 24000),
			MP3Bitrate: getEnvOrDefault("RADIO_MP3_BITRATE", "96k"),

			WriterMaxTurns:  getEnvIntOrDefault("RADIO_WRITER_MAX_TURNS", 50),
			WriterMaxChars:  getEnvIntOrDefault("RADIO_WRITER_MAX_CHARS", 25000),
			WriterMaxPasses: getEnvIntOrDefault("RADIO_WRITER_MAX_PASSES", 10),
			WriterRetries:   getEnvIntOrDefault("RADIO_WRITER_RETRIES", 3),

			SilenceRetakes:     getEnvIntOrDefault("RADIO_SILENCE_RETAKES", 3),
			SilenceThresholdDB: getEnvFloatOrDefault("RADIO_SILENCE_THRESHOLD_DB", -50),
			SilenceMax:         getEnvDurationOrDefault("RADIO_SILENCE_MAX", 1500*time.Millisecond),

			RecorderConcurrency: getEnvIntOrDefault("RADIO_RECORDER_CONCURRENCY", 3),
			ComposerConcurrency: getEnvIntOrDefault("RADIO_COMPOSER_CONCURRENCY", 3),

			Crossfade:   getEnvDurationOrDefault("RADIO_CROSSFADE", 2500*time.Millisecond),
			Tail:        getEnvDurationOrDefault("RADIO_TAIL", 5000*time.Millisecond),
			MusicGap:    getEnvDurationOrDefault("RADIO_MUSIC_GAP", 100*time.Millisecond),
			DuckDB:      getEnvFloatOrDefault("RADIO_DUCK_DB", -10),
			LeadBars:    getEnvIntOrDefault("RADIO_LEAD_BARS", 4),
			DefaultLead: getEnvDurationOrDefault("RADIO_DEFAULT_LEAD", 10*time.Second),
		},
		Schedule: ScheduleConfig{
			ProgramIDs:      getEnvListOrDefault("RADIO_PROGRAM_IDS", nil),
			DefaultSchedule: getEnvOrDefault("RADIO_DEFAULT_SCHEDULE", "0 0 6 * * *"),
		},
	}
}

// DefaultRadioConfig 返回默认的节目参数, 测试和工具使用
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		SampleRate:          24000,
		MP3Bitrate:          "96k",
		WriterMaxTurns:      50,
		WriterMaxChars:      25000,
		WriterMaxPasses:     10,
		WriterRetries:       3,
		SilenceRetakes:      3,
		SilenceThresholdDB:  -50,
		SilenceMax:          1500 * time.Millisecond,
		RecorderConcurrency: 3,
		ComposerConcurrency: 3,
		Crossfade:           2500 * time.Millisecond,
		Tail:                5000 * time.Millisecond,
		MusicGap:            100 * time.Millisecond,
		DuckDB:              -10,
		LeadBars:            4,
		DefaultLead:         10 * time.Second,
	}
}

// getEnvOrDefault 获取环境变量或默认值
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvIntOrDefault 获取环境变量(整数)或默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloatOrDefault 获取环境变量(浮点数)或默认值
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvDurationOrDefault 获取环境变量(时长, 如 "2500ms")或默认值
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvListOrDefault 获取逗号分隔的环境变量或默认值
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
