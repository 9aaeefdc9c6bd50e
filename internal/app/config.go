package app

import (
	"strings"
	"time"

	"github.com/yungbote/learnhub/internal/pkg/envutil"
	"github.com/yungbote/learnhub/internal/pkg/logger"
)

type Config struct {
	Environment string
	Version     string

	DBDriver string

	JWTSecretKey             string
	JWTIssuer                string
	AccessTokenTTL           time.Duration
	RefreshTokenTTL          time.Duration
	RequireEmailConfirmation bool
	MinPasswordLength        int
	AuthRefreshInterval      time.Duration

	RedisAddr        string
	RedisChannel     string
	SessionClientKey string

	SeedCatalog     bool
	CatalogSeedPath string

	MetricsAddr           string
	MetricsSampleInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	accessTokenTTLSeconds := envutil.Int("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTLSeconds := envutil.Int("REFRESH_TOKEN_TTL", 30*86400, log)
	return Config{
		Environment: envutil.String("APP_ENV", "development", log),
		Version:     envutil.String("APP_VERSION", "dev", log),

		DBDriver: strings.ToLower(envutil.String("DB_DRIVER", "sqlite", log)),

		JWTSecretKey:             envutil.String("JWT_SECRET_KEY", "defaultsecret", log),
		JWTIssuer:                envutil.String("JWT_ISSUER", "learnhub", log),
		AccessTokenTTL:           time.Duration(accessTokenTTLSeconds) * time.Second,
		RefreshTokenTTL:          time.Duration(refreshTokenTTLSeconds) * time.Second,
		RequireEmailConfirmation: envutil.Bool("AUTH_REQUIRE_EMAIL_CONFIRMATION", false, log),
		MinPasswordLength:        envutil.Int("MIN_PASSWORD_LENGTH", 8, log),
		AuthRefreshInterval:      envutil.Duration("AUTH_REFRESH_INTERVAL", time.Minute, log),

		RedisAddr:        envutil.String("REDIS_ADDR", "", log),
		RedisChannel:     envutil.String("REDIS_CHANNEL", "learnhub:auth", log),
		SessionClientKey: envutil.String("SESSION_CLIENT_KEY", "default", log),

		SeedCatalog:     envutil.Bool("CATALOG_SEED", true, log),
		CatalogSeedPath: envutil.String("CATALOG_SEED_PATH", "", log),

		MetricsAddr:           envutil.String("METRICS_ADDR", "", log),
		MetricsSampleInterval: envutil.Duration("METRICS_SAMPLE_INTERVAL", 15*time.Second, log),
	}
}
