package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseDriver      string // postgres | sqlite
	DatabaseURL         string
	SQLitePath          string
	RedisURL            string
	SupabaseURL         string // storage sign URLs and public URLs
	SupabaseSecretKey   string // service_role key, not the anon key
	StripeSecretKey     string // optional; card checkout uses the simulated gateway when empty
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	PublicOrigin        string // origin used in handoff deep links and verification links
	SendinblueAPIKey    string
	MailFrom            string
	KafkaBrokers        []string
	KafkaTopic          string

	HandoffCodeTTL      time.Duration
	HandoffMaxAttempts  int
	AutoReleaseWindow   time.Duration
	AutoReleaseInterval time.Duration
	PollCacheTTL        time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("SQLITE_PATH", "unimarket.db")
	viper.SetDefault("PUBLIC_ORIGIN", "http://localhost:5173")
	viper.SetDefault("MAIL_FROM", "noreply@unimarket.app")
	viper.SetDefault("KAFKA_TOPIC", "unimarket.order-events")
	viper.SetDefault("HANDOFF_CODE_TTL", "2h")
	viper.SetDefault("HANDOFF_MAX_ATTEMPTS", 5)
	viper.SetDefault("AUTO_RELEASE_WINDOW", "72h")
	viper.SetDefault("AUTO_RELEASE_INTERVAL", "1m")
	viper.SetDefault("POLL_CACHE_TTL", "3s")

	return &Config{
		Env:                 viper.GetString("APP_ENV"),
		Port:                viper.GetString("PORT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseDriver:      strings.ToLower(viper.GetString("DATABASE_DRIVER")),
		DatabaseURL:         viper.GetString("DATABASE_URL"),
		SQLitePath:          viper.GetString("SQLITE_PATH"),
		RedisURL:            viper.GetString("REDIS_URL"),
		SupabaseURL:         viper.GetString("SUPABASE_URL"),
		SupabaseSecretKey:   viper.GetString("SUPABASE_SECRET_KEY"),
		StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   viper.GetBool("ALLOW_CROSS_SITE_DEV"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		PublicOrigin:        strings.TrimRight(viper.GetString("PUBLIC_ORIGIN"), "/"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
		KafkaBrokers:        splitList(viper.GetString("KAFKA_BROKERS")),
		KafkaTopic:          viper.GetString("KAFKA_TOPIC"),
		HandoffCodeTTL:      viper.GetDuration("HANDOFF_CODE_TTL"),
		HandoffMaxAttempts:  viper.GetInt("HANDOFF_MAX_ATTEMPTS"),
		AutoReleaseWindow:   viper.GetDuration("AUTO_RELEASE_WINDOW"),
		AutoReleaseInterval: viper.GetDuration("AUTO_RELEASE_INTERVAL"),
		PollCacheTTL:        viper.GetDuration("POLL_CACHE_TTL"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
