package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/eazynet/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultRequestTimeout  = 10 * time.Second
	defaultSubscriptionTTL = 5 * time.Minute

	// Identity backend used by local development only
	devAPIURL = "http://localhost:5000"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the account service will be run
	ListenAddr string

	// Identity backend base URL
	APIURL string

	// Database for OAuth sessions. Sessions are kept in memory if empty
	DatabaseDSN string

	// Redis for the subscription cache. Cache is kept in memory if empty
	RedisAddr string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	RequestTimeout  time.Duration
	SubscriptionTTL time.Duration

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		RequestTimeout:  defaultRequestTimeout,
		SubscriptionTTL: defaultSubscriptionTTL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	var errs []error

	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(name string, o *time.Duration) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
				return
			}
			*o = d
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":                 setString(&c.ListenAddr),
		"NEXT_PUBLIC_EAZYNET_API_URL": setString(&c.APIURL),
		"DATABASE_URI":                setString(&c.DatabaseDSN),
		"REDIS_ADDR":                  setString(&c.RedisAddr),
		"GOOGLE_CLIENT_ID":            setString(&c.GoogleClientID),
		"GOOGLE_CLIENT_SECRET":        setString(&c.GoogleClientSecret),
		"GOOGLE_REDIRECT_URL":         setString(&c.GoogleRedirectURL),
		"LOG_LEVEL":                   setString(&c.LogLevel),
		"ENVIRONMENT":                 setString(&c.Environment),
		"REQUEST_TIMEOUT":             setDuration("REQUEST_TIMEOUT", &c.RequestTimeout),
		"SUBSCRIPTION_CACHE_TTL":      setDuration("SUBSCRIPTION_CACHE_TTL", &c.SubscriptionTTL),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("eazynet", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.APIURL, "api", "u", c.APIURL, "Identity backend base URL")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string for OAuth sessions")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for the subscription cache")
	fs.StringVar(&c.GoogleClientID, "google-client-id", c.GoogleClientID, "Google OAuth client id")
	fs.StringVar(&c.GoogleClientSecret, "google-client-secret", c.GoogleClientSecret, "Google OAuth client secret")
	fs.StringVar(&c.GoogleRedirectURL, "google-redirect-url", c.GoogleRedirectURL, "Google OAuth callback URL")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Identity backend request timeout")
	fs.DurationVar(&c.SubscriptionTTL, "subscription-ttl", c.SubscriptionTTL, "Subscription cache TTL")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate fills the development API URL and checks required options
func (c *Config) Validate() error {
	if c.APIURL == "" && c.Environment == logger.EnvDevelopment {
		c.APIURL = devAPIURL
	}
	if c.APIURL == "" {
		return errors.New("identity backend URL is required: set NEXT_PUBLIC_EAZYNET_API_URL or --api")
	}

	google := []string{c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURL}
	var set int
	for _, v := range google {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(google) {
		return errors.New("google sign in needs client id, client secret and redirect url together")
	}

	return nil
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// Cookies are marked 'Secure' everywhere except local development
func (c *Config) SecureCookies() bool {
	return c.Environment != logger.EnvDevelopment
}
