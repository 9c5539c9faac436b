package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DocumentBackendAFS reads documents from any afs URL (file, mem, http, gs, s3).
	DocumentBackendAFS = "afs"
	// DocumentBackendCloudinary resolves documents to Cloudinary delivery URLs.
	DocumentBackendCloudinary = "cloudinary"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName             string        `config:"app.name" validate:"required"`
	AppEnv              string        `config:"app.env"`
	AppPort             string        `config:"app.port" validate:"required"`
	DatabaseURL         string        `config:"database.url" validate:"required"`
	RedisURL            string        `config:"redis.url" validate:"omitempty,url"`
	NATSURL             string        `config:"nats.url" validate:"omitempty,url"`
	EventsChannel       string        `config:"events.channel" validate:"required"`
	DocumentsBackend    string        `config:"documents.backend" validate:"oneof=afs cloudinary"`
	DocumentsBaseURL    string        `config:"documents.base_url" validate:"required_if=DocumentsBackend afs"`
	CloudinaryCloudName string        `config:"cloudinary.cloud_name" validate:"required_if=DocumentsBackend cloudinary"`
	CloudinaryAPIKey    string        `config:"cloudinary.api_key" validate:"required_if=DocumentsBackend cloudinary"`
	CloudinaryAPISecret string        `config:"cloudinary.api_secret" validate:"required_if=DocumentsBackend cloudinary"`
	CloudinaryFolder    string        `config:"cloudinary.folder"`
	AIProvider          string        `config:"ai.provider" validate:"eq=openai"`
	AIBaseURL           string        `config:"ai.base_url" validate:"omitempty,url"`
	AIModel             string        `config:"ai.model" validate:"required"`
	OpenAIAPIKey        string        `config:"openai_api_key" validate:"required_without=AIBaseURL"`
	AIRequestTimeout    time.Duration `config:"ai.request_timeout" validate:"gt=0"`
	SynthesisMaxTokens  int           `config:"ai.synthesis_max_tokens" validate:"gt=0"`
	GradingMaxTokens    int           `config:"ai.grading_max_tokens" validate:"gtfield=SynthesisMaxTokens"`
	AITemperature       float32       `config:"ai.temperature" validate:"gte=0,lte=2"`
	GradingLockTTL      time.Duration `config:"grading.lock_ttl" validate:"gt=0"`
	GradingRateLimit    int           `config:"grading.rate_limit" validate:"gte=0"`
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "gema")
	v.SetDefault("documents.backend", DocumentBackendAFS)
	v.SetDefault("documents.base_url", "file://localhost/var/lib/gema/uploads")
	v.SetDefault("cloudinary.folder", "gema/grading")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.request_timeout", "60s")
	v.SetDefault("ai.synthesis_max_tokens", 1500)
	v.SetDefault("ai.grading_max_tokens", 2000)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("grading.lock_ttl", "5m")
	v.SetDefault("grading.rate_limit", 30)

	requestTimeout, err := parseDuration(v, "ai.request_timeout", 60*time.Second)
	if err != nil {
		return Config{}, err
	}

	lockTTL, err := parseDuration(v, "grading.lock_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventsChannel:       v.GetString("events.channel"),
		DocumentsBackend:    strings.ToLower(v.GetString("documents.backend")),
		DocumentsBaseURL:    strings.TrimRight(v.GetString("documents.base_url"), "/"),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		AIProvider:          strings.ToLower(v.GetString("ai.provider")),
		AIBaseURL:           v.GetString("ai.base_url"),
		AIModel:             v.GetString("ai.model"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		AIRequestTimeout:    requestTimeout,
		SynthesisMaxTokens:  v.GetInt("ai.synthesis_max_tokens"),
		GradingMaxTokens:    v.GetInt("ai.grading_max_tokens"),
		AITemperature:       float32(v.GetFloat64("ai.temperature")),
		GradingLockTTL:      lockTTL,
		GradingRateLimit:    v.GetInt("grading.rate_limit"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validate checks the loaded values against the struct tags. Failures name the
// configuration key, not the Go field.
func (c Config) validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("config")
	})

	err := validate.Struct(c)
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	problems := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		problem := fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag())
		if fieldErr.Param() != "" {
			problem += "=" + fieldErr.Param()
		}
		problems = append(problems, problem)
	}
	return fmt.Errorf("invalid configuration: %s: %w", strings.Join(problems, "; "), err)
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return fallback, nil
	}
	return value, nil
}
