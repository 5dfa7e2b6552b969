package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	private Private
}

type Public struct {
	Pg      Pg            `yaml:"pg" validate:"required"`
	HTTP    HTTP          `yaml:"http"`
	Log     Log           `yaml:"log"`
	Media   Media         `yaml:"media"`
	Storage Storage       `yaml:"storage"`
	Events  Events        `yaml:"events"`
	Redis   Redis         `yaml:"redis"`
	Upload  Upload        `yaml:"upload"`
	JwtTTL  time.Duration `yaml:"jwt_ttl"`
}

type Pg struct {
	Host   string `yaml:"host" validate:"required"`
	Port   int    `yaml:"port" validate:"required,min=1,max=65535"`
	User   string `yaml:"user" validate:"required"`
	Dbname string `yaml:"dbname" validate:"required"`
}

type HTTP struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CorsOrigins    []string      `yaml:"cors_origins"`
	HTTPS          bool          `yaml:"https"` // served behind TLS; enables HSTS
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// Media configures association dispatching and orphan reaping.
type Media struct {
	GracePeriod   time.Duration `yaml:"grace_period" validate:"min=0"`
	DailyAt       string        `yaml:"daily_at"`       // "HH:MM" local time, used when SweepInterval is zero
	SweepInterval time.Duration `yaml:"sweep_interval"` // overrides DailyAt when set
	ReapTimeout   time.Duration `yaml:"reap_timeout"`   // on-demand reaping after post delete
	Workers       int           `yaml:"workers" validate:"min=1"`
	QueueSize     int           `yaml:"queue_size" validate:"min=1"`
	JobTimeout    time.Duration `yaml:"job_timeout" validate:"gt=0"`
	MaxAttempts   int           `yaml:"max_attempts" validate:"min=1"`
	RetryDelay    time.Duration `yaml:"retry_delay" validate:"min=0"`
}

type Storage struct {
	Driver        string `yaml:"driver" validate:"oneof=fs s3"`
	Root          string `yaml:"root" validate:"required_if=Driver fs"`
	PublicBaseURL string `yaml:"public_base_url" validate:"required"`
	Bucket        string `yaml:"bucket" validate:"required_if=Driver s3"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
}

type Events struct {
	Driver  string `yaml:"driver" validate:"oneof=memory nats"`
	NatsURL string `yaml:"nats_url" validate:"required_if=Driver nats"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	Durable string `yaml:"durable"`
}

// Redis is optional; when Addr is empty the sweep lock is process-local only.
type Redis struct {
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type Upload struct {
	MaxThumbnailSize int64 `yaml:"max_thumbnail_size" validate:"gt=0"`
	MaxImageSize     int64 `yaml:"max_image_size" validate:"gt=0"`
	MaxVideoSize     int64 `yaml:"max_video_size" validate:"gt=0"`
	MaxDocumentSize  int64 `yaml:"max_document_size" validate:"gt=0"`
	// Per-author upload budget; admins are exempt.
	PerMinute float64 `yaml:"per_minute" validate:"gt=0"`
	Burst     int     `yaml:"burst" validate:"min=1"`
}

type Private struct {
	PgPassword    string `yaml:"pg_password"`
	JwtKey        string `yaml:"jwt_key" validate:"required"`
	S3AccessKey   string `yaml:"s3_access_key"`
	S3SecretKey   string `yaml:"s3_secret_key"`
	RedisPassword string `yaml:"redis_password"`
	SentryDSN     string `yaml:"sentry_dsn"`
}

func (s *Config) JwtKey() string {
	return s.private.JwtKey
}

func (s *Config) JwtTTL() time.Duration {
	return s.Public.JwtTTL
}

func (s *Config) PgPassword() string {
	return s.private.PgPassword
}

func (s *Config) S3Credentials() (string, string) {
	return s.private.S3AccessKey, s.private.S3SecretKey
}

func (s *Config) RedisPassword() string {
	return s.private.RedisPassword
}

func (s *Config) SentryDSN() string {
	return s.private.SentryDSN
}

func defaultPublic() Public {
	return Public{
		HTTP: HTTP{Addr: ":8080", RequestTimeout: 60 * time.Second},
		Log:  Log{Level: "info"},
		Media: Media{
			GracePeriod: 24 * time.Hour,
			DailyAt:     "03:00",
			ReapTimeout: 5 * time.Minute,
			Workers:     5,
			QueueSize:   25,
			JobTimeout:  30 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		Storage: Storage{Driver: "fs", Root: "./data/uploads", Region: "auto"},
		Events:  Events{Driver: "memory", Stream: "MEDIA", Subject: "media.associate", Durable: "media-associator"},
		Redis:   Redis{LockTTL: 30 * time.Minute},
		Upload: Upload{
			MaxThumbnailSize: 2 << 20,
			MaxImageSize:     5 << 20,
			MaxVideoSize:     50 << 20,
			MaxDocumentSize:  10 << 20,
			PerMinute:        30,
			Burst:            10,
		},
		JwtTTL: 24 * time.Hour,
	}
}

// secrets may come from the environment (or a .env file) instead of private.yaml
func applyEnv(private *Private) {
	overrides := map[string]*string{
		"BLOG_PG_PASSWORD": &private.PgPassword,
		"BLOG_JWT_KEY":     &private.JwtKey,
		"S3_ACCESS_KEY":    &private.S3AccessKey,
		"S3_SECRET_KEY":    &private.S3SecretKey,
		"REDIS_PASSWORD":   &private.RedisPassword,
		"SENTRY_DSN":       &private.SentryDSN,
	}
	for key, target := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*target = v
		}
	}
}

func mustLoadPath(configPath string, output interface{}, optional bool) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if optional {
			return
		}
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic(fmt.Sprintf("can't unmarshal config file %s: %v", configPath, err))
	}
}

func MustLoad(configFolder string) *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	public := defaultPublic()
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public, false)

	// private.yaml may be omitted when secrets come from the environment
	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private, true)
	applyEnv(&private)

	validate := validator.New()
	if err := validate.Struct(public); err != nil {
		panic("invalid public config: " + err.Error())
	}
	if err := validate.Struct(private); err != nil {
		panic("invalid private config: " + err.Error())
	}
	if _, err := time.Parse("15:04", public.Media.DailyAt); public.Media.SweepInterval == 0 && err != nil {
		panic("invalid media.daily_at, expected HH:MM: " + public.Media.DailyAt)
	}

	return &Config{public, private}
}
