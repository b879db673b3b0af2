package config

import (
	"fmt"
	"os"
	"strings"

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
	Output   OutputConfig
	Image    ImageConfig
	Video    VideoConfig
	OpenAI   OpenAIConfig
	TikTok   TikTokConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type OutputConfig struct {
	Dir string
}

type ImageConfig struct {
	Width  int
	Height int
}

type VideoConfig struct {
	Width  int
	Height int
	FPS    int
	Codec  string
	Preset string
	CRF    int

	// Per-slide durations in seconds.
	IntroSec       float64
	PuzzleSec      float64
	AnswerSec      float64
	ExplanationSec float64

	CountdownStart int
}

// TotalDuration returns the fixed video length in seconds.
func (v VideoConfig) TotalDuration() float64 {
	return v.IntroSec + v.PuzzleSec + v.AnswerSec + v.ExplanationSec
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

type TikTokConfig struct {
	AccessToken   string
	BaseURL       string
	PrivacyLevel  string
	ChunkSize     int64
	MaxCaptionLen int

	// Content Posting API allows 6 /video/init/ calls per minute.
	RateLimitCalls     int
	RateLimitWindowSec int
	UploadTimeoutSec   int
}

// StorageConfig selects the upload backend: "s3", "drive", or "" (disabled).
type StorageConfig struct {
	Backend string
	S3      S3Config
	Drive   DriveConfig
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type DriveConfig struct {
	FolderID        string
	CredentialsFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PipelineConfig struct {
	MaxAttempts     int
	BackoffBaseMS   int
	BackoffCapMS    int
	StageTimeoutSec int
	Parallel        int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("OPENAI_API_KEY")
	readSecret("TIKTOK_ACCESS_TOKEN")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("output.dir", "OUTPUT_DIR")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("openai.temperature", "OPENAI_TEMPERATURE")
	_ = viper.BindEnv("tiktok.access_token", "TIKTOK_ACCESS_TOKEN")
	_ = viper.BindEnv("tiktok.base_url", "TIKTOK_API_BASE_URL")
	_ = viper.BindEnv("tiktok.privacy_level", "TIKTOK_PRIVACY_LEVEL")
	_ = viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = viper.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("storage.s3.region", "S3_REGION")
	_ = viper.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("storage.drive.folder_id", "GOOGLE_DRIVE_FOLDER_ID")
	_ = viper.BindEnv("storage.drive.credentials_file", "GOOGLE_DRIVE_CREDENTIALS_PATH")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("pipeline.max_attempts", "PIPELINE_MAX_ATTEMPTS")
	_ = viper.BindEnv("pipeline.parallel", "PIPELINE_PARALLEL")
	_ = viper.BindEnv("pipeline.stage_timeout_sec", "PIPELINE_STAGE_TIMEOUT")
	_ = viper.BindEnv("log.level", "LOG_LEVEL")

	// Defaults
	viper.SetDefault("output.dir", "./output")
	viper.SetDefault("image.width", 1080)
	viper.SetDefault("image.height", 1350)
	viper.SetDefault("video.width", 1080)
	viper.SetDefault("video.height", 1920)
	viper.SetDefault("video.fps", 24)
	viper.SetDefault("video.codec", "libx264")
	viper.SetDefault("video.preset", "medium")
	viper.SetDefault("video.crf", 23)
	viper.SetDefault("video.intro_sec", 2.0)
	viper.SetDefault("video.puzzle_sec", 8.0)
	viper.SetDefault("video.answer_sec", 3.0)
	viper.SetDefault("video.explanation_sec", 5.0)
	viper.SetDefault("video.countdown_start", 5)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.temperature", 0.7)

	// TikTok defaults
	viper.SetDefault("tiktok.base_url", "https://open.tiktokapis.com")
	viper.SetDefault("tiktok.privacy_level", "SELF_ONLY")
	viper.SetDefault("tiktok.chunk_size", 10*1024*1024)
	viper.SetDefault("tiktok.max_caption_len", 2200)
	viper.SetDefault("tiktok.rate_limit_calls", 6)
	viper.SetDefault("tiktok.rate_limit_window_sec", 60)
	viper.SetDefault("tiktok.upload_timeout_sec", 3600)

	viper.SetDefault("storage.backend", "")
	viper.SetDefault("storage.s3.region", "auto")

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.backoff_base_ms", 500)
	viper.SetDefault("pipeline.backoff_cap_ms", 8000)
	viper.SetDefault("pipeline.stage_timeout_sec", 120)
	viper.SetDefault("pipeline.parallel", 1)

	viper.SetDefault("log.level", "info")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Output: OutputConfig{
			Dir: viper.GetString("output.dir"),
		},
		Image: ImageConfig{
			Width:  viper.GetInt("image.width"),
			Height: viper.GetInt("image.height"),
		},
		Video: VideoConfig{
			Width:          viper.GetInt("video.width"),
			Height:         viper.GetInt("video.height"),
			FPS:            viper.GetInt("video.fps"),
			Codec:          viper.GetString("video.codec"),
			Preset:         viper.GetString("video.preset"),
			CRF:            viper.GetInt("video.crf"),
			IntroSec:       viper.GetFloat64("video.intro_sec"),
			PuzzleSec:      viper.GetFloat64("video.puzzle_sec"),
			AnswerSec:      viper.GetFloat64("video.answer_sec"),
			ExplanationSec: viper.GetFloat64("video.explanation_sec"),
			CountdownStart: viper.GetInt("video.countdown_start"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      viper.GetString("openai.api_key"),
			BaseURL:     viper.GetString("openai.base_url"),
			Model:       viper.GetString("openai.model"),
			Temperature: viper.GetFloat64("openai.temperature"),
		},
		TikTok: TikTokConfig{
			AccessToken:        viper.GetString("tiktok.access_token"),
			BaseURL:            viper.GetString("tiktok.base_url"),
			PrivacyLevel:       viper.GetString("tiktok.privacy_level"),
			ChunkSize:          viper.GetInt64("tiktok.chunk_size"),
			MaxCaptionLen:      viper.GetInt("tiktok.max_caption_len"),
			RateLimitCalls:     viper.GetInt("tiktok.rate_limit_calls"),
			RateLimitWindowSec: viper.GetInt("tiktok.rate_limit_window_sec"),
			UploadTimeoutSec:   viper.GetInt("tiktok.upload_timeout_sec"),
		},
		Storage: StorageConfig{
			Backend: viper.GetString("storage.backend"),
			S3: S3Config{
				Endpoint:        viper.GetString("storage.s3.endpoint"),
				Region:          viper.GetString("storage.s3.region"),
				AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
				SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
				BucketName:      viper.GetString("storage.s3.bucket_name"),
				PublicURL:       viper.GetString("storage.s3.public_url"),
			},
			Drive: DriveConfig{
				FolderID:        viper.GetString("storage.drive.folder_id"),
				CredentialsFile: viper.GetString("storage.drive.credentials_file"),
			},
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:     viper.GetInt("pipeline.max_attempts"),
			BackoffBaseMS:   viper.GetInt("pipeline.backoff_base_ms"),
			BackoffCapMS:    viper.GetInt("pipeline.backoff_cap_ms"),
			StageTimeoutSec: viper.GetInt("pipeline.stage_timeout_sec"),
			Parallel:        viper.GetInt("pipeline.parallel"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
	}

	return cfg, nil
}

// Validate checks settings that must hold before any item starts. Flags
// decide which collaborators are required: posting needs a TikTok token,
// uploading needs a configured storage backend.
func (c *Config) Validate(post, upload bool) error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if post && c.TikTok.AccessToken == "" {
		return fmt.Errorf("TIKTOK_ACCESS_TOKEN is required when posting is enabled")
	}
	if upload {
		switch c.Storage.Backend {
		case "s3":
			if c.Storage.S3.AccessKeyID == "" || c.Storage.S3.SecretAccessKey == "" || c.Storage.S3.BucketName == "" {
				return fmt.Errorf("S3 storage configuration incomplete")
			}
		case "drive":
			if c.Storage.Drive.FolderID == "" || c.Storage.Drive.CredentialsFile == "" {
				return fmt.Errorf("drive storage requires GOOGLE_DRIVE_FOLDER_ID and GOOGLE_DRIVE_CREDENTIALS_PATH")
			}
		default:
			return fmt.Errorf("upload enabled but STORAGE_BACKEND is not set (s3 or drive)")
		}
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be >= 1")
	}
	if c.Pipeline.Parallel < 1 {
		return fmt.Errorf("pipeline.parallel must be >= 1")
	}
	return nil
}

// Summary returns loggable configuration (secrets excluded).
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"output_dir":       c.Output.Dir,
		"image_size":       fmt.Sprintf("%dx%d", c.Image.Width, c.Image.Height),
		"video_resolution": fmt.Sprintf("%dx%d@%d", c.Video.Width, c.Video.Height, c.Video.FPS),
		"openai_model":     c.OpenAI.Model,
		"privacy_level":    c.TikTok.PrivacyLevel,
		"storage_backend":  c.Storage.Backend,
		"parallel":         fmt.Sprintf("%d", c.Pipeline.Parallel),
	}
}
