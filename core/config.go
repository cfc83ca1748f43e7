package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	billingConfig struct {
		RateURL      string
		RateTimeout  time.Duration
		InsecureTLS  bool // the central bank site often serves a broken chain
		FallbackRate decimal.Decimal
	}

	storageConfig struct {
		MediaRoot     string
		MaxImageWidth int
	}

	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		AppName                   string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridApiKey            string
		DemoPassword              string // of the accounts seeded in demo mode
		PasswordResetTimeoutDelta time.Duration
		Server                    serverConfig
		Database                  databaseConfig
		Billing                   billingConfig
		Storage                   storageConfig

		defaultFromEmail string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (c databaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig reads the app configuration from env vars prefixed by the current ENV,
// optionally loaded from `config/.env.<env>`.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("appName", "Colegio")
	v.SetDefault("secretKey", "x8#v-ql2!mzr(0p@t9u+k4e&w7y$c1o)h6s5b3n_d=aj")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("demoPassword", "colegio1234")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "colegio")
	v.SetDefault("dbUser", "colegio")
	v.SetDefault("dbPassword", "colegio")
	v.SetDefault("dbDisableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("billingRateURL", "https://www.bcv.org.ve")
	v.SetDefault("billingRateTimeout", 10*time.Second)
	v.SetDefault("billingInsecureTLS", true)
	v.SetDefault("billingFallbackRate", "36.50")

	v.SetDefault("storageMediaRoot", "media")
	v.SetDefault("storageMaxImageWidth", 1600)

	v.AutomaticEnv()

	fallbackRate, err := decimal.NewFromString(v.GetString("billingFallbackRate"))
	if err != nil {
		log.Fatalf("config.billingFallbackRate: %v", err)
	}

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  env == "TEST",
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		DemoPassword:              v.GetString("demoPassword"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: serverConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Billing: billingConfig{
			RateURL:      v.GetString("billingRateURL"),
			RateTimeout:  v.GetDuration("billingRateTimeout"),
			InsecureTLS:  v.GetBool("billingInsecureTLS"),
			FallbackRate: fallbackRate,
		},
		Storage: storageConfig{
			MediaRoot:     v.GetString("storageMediaRoot"),
			MaxImageWidth: v.GetInt("storageMaxImageWidth"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, short deltas.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		AppName:                   "Colegio",
		Debug:                     false,
		TestMode:                  true,
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DemoPassword:              "colegio1234",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "noreply@localhost",
		Server: serverConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Billing: billingConfig{
			RateTimeout:  time.Second,
			FallbackRate: decimal.RequireFromString("36.50"),
		},
		Storage: storageConfig{
			MediaRoot:     os.TempDir(),
			MaxImageWidth: 1600,
		},
	}
}
