package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	Log Log `yaml:"log"`
	Jwt Jwt `yaml:"jwt"`

	// confirmation link is {ClientUrl}/{ConfirmEmailPath}?token=...&email=...
	ClientUrl        string `yaml:"client_url" validate:"required,url"`
	ConfirmEmailPath string `yaml:"confirm_email_path" validate:"required"`
	ApplicationName  string `yaml:"application_name" validate:"required"`

	RequireEmailConfirmation    bool           `yaml:"require_email_confirmation"`
	ConfirmationTokenTTL        time.Duration  `yaml:"confirmation_token_ttl" validate:"gt=0"`
	ConfirmationTokenGCInterval time.Duration  `yaml:"confirmation_token_gc_interval" validate:"gt=0"`
	PasswordPolicy              PasswordPolicy `yaml:"password_policy"`

	RateLimits RateLimits `yaml:"rate_limits"`

	HTTPPort       int      `yaml:"http_port" validate:"gt=0"`
	SecureCookies  bool     `yaml:"secure_cookies"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Migrate        bool     `yaml:"migrate"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Jwt struct {
	Issuer   string        `yaml:"issuer" validate:"required"`
	Audience string        `yaml:"audience" validate:"required"`
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
}

type PasswordPolicy struct {
	MinLength      int  `yaml:"min_length" validate:"gte=1"`
	RequireDigit   bool `yaml:"require_digit"`
	RequireLower   bool `yaml:"require_lower"`
	RequireUpper   bool `yaml:"require_upper"`
	RequireSpecial bool `yaml:"require_special"`
}

// RateLimits are requests per minute for each identity.
type RateLimits struct {
	RegisterPerIP    int `yaml:"register_per_ip" validate:"gt=0"`
	RegisterPerEmail int `yaml:"register_per_email" validate:"gt=0"`
	LoginPerIP       int `yaml:"login_per_ip" validate:"gt=0"`
	ConfirmPerEmail  int `yaml:"confirm_per_email" validate:"gt=0"`
	ResendPerIP      int `yaml:"resend_per_ip" validate:"gt=0"`
	ResendPerEmail   int `yaml:"resend_per_email" validate:"gt=0"`
}

type Private struct {
	JwtKey string `yaml:"jwt_key" validate:"required"`
	Pg     Pg     `yaml:"pg"`
	Email  Email  `yaml:"email"`
}

type Pg struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname" validate:"required"`
	SSLMode  string `yaml:"sslmode"`
}

type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SenderName string `yaml:"sender_name"`
	Timeout    int    `yaml:"timeout"` // seconds
	// log messages instead of delivering them
	DryRun bool `yaml:"dry_run"`
}

// Environment variables that take precedence over private.yaml.
const (
	EnvJwtKey       = "ACCOUNTS_JWT_KEY"
	EnvPgPassword   = "ACCOUNTS_PG_PASSWORD"
	EnvSmtpPassword = "ACCOUNTS_SMTP_PASSWORD"
	EnvHTTPPort     = "PORT"
)

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

func (s *Config) JwtTTL() time.Duration {
	return s.Public.Jwt.TTL
}

func defaultPublic() Public {
	return Public{
		Log:                         Log{Level: "info"},
		Jwt:                         Jwt{Issuer: "accounts", Audience: "accounts", TTL: 7 * 24 * time.Hour},
		RequireEmailConfirmation:    true,
		ConfirmationTokenTTL:        24 * time.Hour,
		ConfirmationTokenGCInterval: time.Hour,
		PasswordPolicy:              PasswordPolicy{MinLength: 6, RequireDigit: true, RequireLower: true, RequireUpper: true},
		RateLimits: RateLimits{
			RegisterPerIP:    10,
			RegisterPerEmail: 3,
			LoginPerIP:       20,
			ConfirmPerEmail:  10,
			ResendPerIP:      5,
			ResendPerEmail:   1,
		},
		HTTPPort: 8080,
	}
}

func defaultPrivate() Private {
	return Private{
		Pg:    Pg{Port: 5432, SSLMode: "disable"},
		Email: Email{SMTPPort: 587, Timeout: 10},
	}
}

func loadPath(configPath string, output interface{}) error {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// applyEnv loads an optional .env from the config folder and lets the
// process environment override secrets.
func applyEnv(configFolder string, private *Private, public *Public) error {
	if err := godotenv.Load(path.Join(configFolder, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("can't load .env: %w", err)
	}
	if v := os.Getenv(EnvJwtKey); v != "" {
		private.JwtKey = v
	}
	if v := os.Getenv(EnvPgPassword); v != "" {
		private.Pg.Password = v
	}
	if v := os.Getenv(EnvSmtpPassword); v != "" {
		private.Email.Password = v
	}
	if v := os.Getenv(EnvHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHTTPPort, err)
		}
		public.HTTPPort = port
	}
	return nil
}

// Load reads public.yaml and private.yaml from configFolder on top of defaults.
func Load(configFolder string) (*Config, error) {
	public := defaultPublic()
	if err := loadPath(path.Join(configFolder, "public.yaml"), &public); err != nil {
		return nil, err
	}
	private := defaultPrivate()
	if err := loadPath(path.Join(configFolder, "private.yaml"), &private); err != nil {
		return nil, err
	}
	if err := applyEnv(configFolder, &private, &public); err != nil {
		return nil, err
	}

	cfg := &Config{Public: public, Private: private}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Private.Email.SMTPServer == "" && !cfg.Private.Email.DryRun {
		return nil, errors.New("invalid config: email.smtp_server is required unless email.dry_run is set")
	}
	return cfg, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}
