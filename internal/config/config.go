// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML file named by CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
)

// Roles accepted by Validate.
const (
	RoleAPI     = "api"
	RoleWorker  = "worker"
	RoleEnqueue = "enqueue"
)

type Config struct {
	Service  ServiceConfig
	HTTP     HTTPConfig
	JobStore string
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Skill    SkillConfig
	Render   RenderConfig
	Avatar   AvatarConfig
}

type ServiceConfig struct {
	Name      string
	LogLevel  string
	LogFormat string
	LogSource bool
}

type HTTPConfig struct {
	Port        string
	MetricsPort string
	CORSOrigins []string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	Backend         string
	Name            string
	PublishAttempts int
	AMQPURL         string
	AMQPExchange    string
	Concurrency     int
}

type StorageConfig struct {
	Provider  string
	LocalRoot string
	S3        S3Config
	GDrive    GDriveConfig
}

type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

type SkillConfig struct {
	Provider     string
	OrchAPI      string
	OrchAPIKey   string
	OrchTimeout  time.Duration
	OpenAIAPIKey string
	OpenAIModel  string
}

type RenderConfig struct {
	Renderer         string
	HTTPBaseURL      string
	Wav2LipPython    string
	Wav2LipScript    string
	Wav2LipCkpt      string
	Timeout          time.Duration
	DefaultQuality   string
	Degraded         bool
	WorkRoot         string
	DownloadTimeout  time.Duration
	DownloadAttempts int
	DownloadMaxBytes int64
}

type AvatarConfig struct {
	Workers    int
	QueueDepth int
}

var secretKeys = []string{
	"database.url",
	"redis.password",
	"amqp.url",
	"s3.access_key",
	"s3.secret_key",
	"gdrive.client_secret",
	"gdrive.refresh_token",
	"orch.apikey",
	"openai.api_key",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "videogenie")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.source", false)

	v.SetDefault("http.port", "8080")
	v.SetDefault("metrics.port", "9091")
	v.SetDefault("cors.allowed_origins", "http://localhost:5173")

	v.SetDefault("job.store", "postgres")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.name", "videoJob")
	v.SetDefault("queue.publish_attempts", 3)
	v.SetDefault("amqp.exchange", "videogenie")
	v.SetDefault("worker.concurrency", 1)

	v.SetDefault("storage.provider", "localfs")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.path_style", true)

	v.SetDefault("skill.provider", "orchestrate")
	v.SetDefault("orch.api", "https://orchestrate.ai.cloud.ibm.com/api")
	v.SetDefault("orch.timeout", "30s")
	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("renderer", "http")
	v.SetDefault("wav2lip.python", "python")
	v.SetDefault("wav2lip.script", "Wav2Lip/inference.py")
	v.SetDefault("wav2lip.checkpoint", "Wav2Lip/checkpoints/wav2lip_gan.pth")
	v.SetDefault("render.timeout", "15m")
	v.SetDefault("render.default_quality", "fast")
	v.SetDefault("render.degraded_mode", false)
	v.SetDefault("work.root", "/tmp/avatar-jobs")
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.attempts", 3)
	v.SetDefault("download.max_bytes", 100<<20)

	v.SetDefault("avatar.workers", 2)
	v.SetDefault("avatar.queue_depth", 16)
}

// Load reads configuration. A missing .env or CONFIG_FILE is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "config.load", "read CONFIG_FILE "+path)
		}
	}

	if err := resolveSecretFiles(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:      v.GetString("service.name"),
			LogLevel:  v.GetString("log.level"),
			LogFormat: v.GetString("log.format"),
			LogSource: v.GetBool("log.source"),
		},
		HTTP: HTTPConfig{
			Port:        v.GetString("http.port"),
			MetricsPort: v.GetString("metrics.port"),
			CORSOrigins: splitCSV(v.GetString("cors.allowed_origins")),
		},
		JobStore: strings.ToLower(v.GetString("job.store")),
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Backend:         strings.ToLower(v.GetString("queue.backend")),
			Name:            v.GetString("queue.name"),
			PublishAttempts: v.GetInt("queue.publish_attempts"),
			AMQPURL:         v.GetString("amqp.url"),
			AMQPExchange:    v.GetString("amqp.exchange"),
			Concurrency:     v.GetInt("worker.concurrency"),
		},
		Storage: StorageConfig{
			Provider:  strings.ToLower(v.GetString("storage.provider")),
			LocalRoot: v.GetString("storage.local_root"),
			S3: S3Config{
				Bucket:    v.GetString("s3.bucket"),
				Endpoint:  v.GetString("s3.endpoint"),
				Region:    v.GetString("s3.region"),
				AccessKey: v.GetString("s3.access_key"),
				SecretKey: v.GetString("s3.secret_key"),
				PathStyle: v.GetBool("s3.path_style"),
			},
			GDrive: GDriveConfig{
				ClientID:     v.GetString("gdrive.client_id"),
				ClientSecret: v.GetString("gdrive.client_secret"),
				RefreshToken: v.GetString("gdrive.refresh_token"),
				FolderID:     v.GetString("gdrive.folder_id"),
			},
		},
		Skill: SkillConfig{
			Provider:     strings.ToLower(v.GetString("skill.provider")),
			OrchAPI:      strings.TrimRight(v.GetString("orch.api"), "/"),
			OrchAPIKey:   v.GetString("orch.apikey"),
			OrchTimeout:  v.GetDuration("orch.timeout"),
			OpenAIAPIKey: v.GetString("openai.api_key"),
			OpenAIModel:  v.GetString("openai.model"),
		},
		Render: RenderConfig{
			Renderer:         strings.ToLower(v.GetString("renderer")),
			HTTPBaseURL:      strings.TrimRight(v.GetString("renderer.http_baseurl"), "/"),
			Wav2LipPython:    v.GetString("wav2lip.python"),
			Wav2LipScript:    v.GetString("wav2lip.script"),
			Wav2LipCkpt:      v.GetString("wav2lip.checkpoint"),
			Timeout:          v.GetDuration("render.timeout"),
			DefaultQuality:   strings.ToLower(v.GetString("render.default_quality")),
			Degraded:         v.GetBool("render.degraded_mode"),
			WorkRoot:         v.GetString("work.root"),
			DownloadTimeout:  v.GetDuration("download.timeout"),
			DownloadAttempts: v.GetInt("download.attempts"),
			DownloadMaxBytes: v.GetInt64("download.max_bytes"),
		},
		Avatar: AvatarConfig{
			Workers:    v.GetInt("avatar.workers"),
			QueueDepth: v.GetInt("avatar.queue_depth"),
		},
	}

	return cfg, nil
}

// resolveSecretFiles replaces KEY with the contents of the file named by
// KEY_FILE when KEY itself is unset.
func resolveSecretFiles(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.GetString(key) != "" {
			continue
		}
		env := strings.ToUpper(strings.ReplaceAll(key, ".", "_")) + "_FILE"
		path := os.Getenv(env)
		if path == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeValidation, "config.load", "read "+env)
		}
		v.Set(key, strings.TrimSpace(string(b)))
	}
	return nil
}

// Validate returns a VALIDATION_ERROR listing every missing or invalid key
// for the given role.
func (c *Config) Validate(role string) error {
	var missing []string
	var invalid []string

	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	oneOf := func(val, key string, allowed ...string) bool {
		for _, a := range allowed {
			if val == a {
				return true
			}
		}
		invalid = append(invalid, fmt.Sprintf("%s=%q (want %s)", key, val, strings.Join(allowed, "|")))
		return false
	}

	switch c.JobStore {
	case "postgres":
		need(c.Database.URL != "", "DATABASE_URL")
	case "redis":
		need(c.Redis.Addr != "", "REDIS_ADDR")
	default:
		oneOf(c.JobStore, "JOB_STORE", "postgres", "redis", "memory")
	}

	if role == RoleAPI || role == RoleWorker || role == RoleEnqueue {
		switch c.Queue.Backend {
		case "redis", "asynq":
			need(c.Redis.Addr != "", "REDIS_ADDR")
		case "amqp":
			need(c.Queue.AMQPURL != "", "AMQP_URL")
		default:
			oneOf(c.Queue.Backend, "QUEUE_BACKEND", "redis", "amqp", "asynq")
		}
		if c.Queue.PublishAttempts < 1 {
			invalid = append(invalid, "QUEUE_PUBLISH_ATTEMPTS must be >= 1")
		}
	}

	if role == RoleAPI || role == RoleEnqueue {
		switch c.Skill.Provider {
		case "orchestrate":
			need(c.Skill.OrchAPIKey != "", "ORCH_APIKEY")
		case "openai":
			need(c.Skill.OpenAIAPIKey != "", "OPENAI_API_KEY")
		default:
			oneOf(c.Skill.Provider, "SKILL_PROVIDER", "orchestrate", "openai")
		}
	}

	if role == RoleAPI || role == RoleWorker {
		switch c.Storage.Provider {
		case "localfs":
			need(c.Storage.LocalRoot != "", "STORAGE_LOCAL_ROOT")
		case "s3":
			need(c.Storage.S3.Bucket != "", "S3_BUCKET")
			need(c.Storage.S3.AccessKey != "", "S3_ACCESS_KEY")
			need(c.Storage.S3.SecretKey != "", "S3_SECRET_KEY")
		case "gdrive":
			need(c.Storage.GDrive.ClientID != "", "GDRIVE_CLIENT_ID")
			need(c.Storage.GDrive.ClientSecret != "", "GDRIVE_CLIENT_SECRET")
			need(c.Storage.GDrive.RefreshToken != "", "GDRIVE_REFRESH_TOKEN")
		default:
			oneOf(c.Storage.Provider, "STORAGE_PROVIDER", "localfs", "s3", "gdrive")
		}

		if !c.Render.Degraded {
			switch c.Render.Renderer {
			case "http":
				need(c.Render.HTTPBaseURL != "", "RENDERER_HTTP_BASEURL")
			case "cli":
			default:
				oneOf(c.Render.Renderer, "RENDERER", "http", "cli")
			}
		}
		if c.Render.Timeout <= 0 {
			invalid = append(invalid, "RENDER_TIMEOUT must be positive")
		}
		if c.Render.DownloadAttempts < 1 {
			invalid = append(invalid, "DOWNLOAD_ATTEMPTS must be >= 1")
		}
	}

	if role == RoleAPI && (c.Avatar.Workers < 1 || c.Avatar.QueueDepth < 1) {
		invalid = append(invalid, "AVATAR_WORKERS and AVATAR_QUEUE_DEPTH must be >= 1")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}

	sort.Strings(missing)
	missing = dedupe(missing)
	parts := make([]string, 0, 2)
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(invalid, "; "))
	}

	return errors.Validationf("config for %s: %s", role, strings.Join(parts, "; ")).
		WithField("role", role).
		WithField("missing", strings.Join(missing, ","))
}

// LoggerConfig maps service settings onto the logger.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Service.LogLevel,
		Format:      c.Service.LogFormat,
		Output:      os.Stdout,
		AddSource:   c.Service.LogSource,
		ServiceName: c.Service.Name,
	}
}

// StaleRenderAfter is how long a job may sit in rendering before another
// delivery may resume it.
func (c *Config) StaleRenderAfter() time.Duration {
	return c.Render.Timeout + time.Minute
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
