package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from the environment
// and an optional YAML file.
type Config struct {
	DatabaseURL      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ChromeBin              string
	Headless               bool
	UserAgent              string
	FetchMode              string
	NavTimeout             time.Duration
	ContentTimeout         time.Duration
	ContentFallbackTimeout time.Duration
	HoldMin                time.Duration
	HoldMax                time.Duration
	ScreenshotDir          string
	SelectorProfile        string
	ZillowBaseURL          string

	MaxRetries       int
	RateLimitMs      int
	MaxConcurrency   int
	ScheduleInterval time.Duration

	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFrom          string
	PlaceholderDomains []string

	HTTPAddr   string
	CronAPIKey string
	Debug      bool
}

// Load reads the .env file, then resolves every key from (in order) the
// process environment, the optional config file, and defaults.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names are what the deployment environment provides.
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, "HOMEWATCH_"+strings.ToUpper(key), strings.ToUpper(key))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "homewatch")
	v.SetDefault("postgres_password", "homewatch")
	v.SetDefault("postgres_db", "homewatch")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("chrome_bin", "")
	v.SetDefault("headless", true)
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("fetch_mode", "dynamic")
	v.SetDefault("nav_timeout", 60*time.Second)
	v.SetDefault("content_timeout", 30*time.Second)
	v.SetDefault("content_fallback_timeout", 10*time.Second)
	v.SetDefault("hold_min", 3*time.Second)
	v.SetDefault("hold_max", 5*time.Second)
	v.SetDefault("screenshot_dir", "./output/screenshots")
	v.SetDefault("selector_profile", "")
	v.SetDefault("zillow_base_url", "https://www.zillow.com")

	v.SetDefault("max_retries", 2)
	v.SetDefault("rate_limit_ms", 2000)
	v.SetDefault("max_concurrency", 2)
	v.SetDefault("schedule_interval", 6*time.Hour)

	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("email_from", "noreply@example.com")
	v.SetDefault("placeholder_domains", []string{"example.com"})

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cron_api_key", "")
	v.SetDefault("debug", false)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DatabaseURL:      v.GetString("database_url"),
		PostgresHost:     v.GetString("postgres_host"),
		PostgresPort:     v.GetString("postgres_port"),
		PostgresUser:     v.GetString("postgres_user"),
		PostgresPassword: v.GetString("postgres_password"),
		PostgresDB:       v.GetString("postgres_db"),
		PostgresSSLMode:  v.GetString("postgres_sslmode"),

		ChromeBin:              v.GetString("chrome_bin"),
		Headless:               v.GetBool("headless"),
		UserAgent:              v.GetString("user_agent"),
		FetchMode:              strings.ToLower(v.GetString("fetch_mode")),
		NavTimeout:             v.GetDuration("nav_timeout"),
		ContentTimeout:         v.GetDuration("content_timeout"),
		ContentFallbackTimeout: v.GetDuration("content_fallback_timeout"),
		HoldMin:                v.GetDuration("hold_min"),
		HoldMax:                v.GetDuration("hold_max"),
		ScreenshotDir:          v.GetString("screenshot_dir"),
		SelectorProfile:        v.GetString("selector_profile"),
		ZillowBaseURL:          strings.TrimRight(v.GetString("zillow_base_url"), "/"),

		MaxRetries:       v.GetInt("max_retries"),
		RateLimitMs:      v.GetInt("rate_limit_ms"),
		MaxConcurrency:   v.GetInt("max_concurrency"),
		ScheduleInterval: v.GetDuration("schedule_interval"),

		SMTPHost:           v.GetString("smtp_host"),
		SMTPPort:           v.GetInt("smtp_port"),
		SMTPUsername:       v.GetString("smtp_username"),
		SMTPPassword:       v.GetString("smtp_password"),
		EmailFrom:          v.GetString("email_from"),
		PlaceholderDomains: splitList(v.GetStringSlice("placeholder_domains")),

		HTTPAddr:   v.GetString("http_addr"),
		CronAPIKey: v.GetString("cron_api_key"),
		Debug:      v.GetBool("debug"),
	}
}

// DSN returns the PostgreSQL connection string. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
