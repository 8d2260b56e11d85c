package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/shopkeeper/internal/timex"
)

const envPrefix = "SHOPKEEPER_"

// loadDotEnv copies a .env file from the working directory into the
// process environment. Variables that are already set are kept.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// parseEnv overlays SHOPKEEPER_<KEY> variables, KEY being the upper-cased
// JSON key, e.g. SHOPKEEPER_REMOTE_BACKEND.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	c := &JsonConfig{}
	var errs []error

	str := func(key string, dst **string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = &v
		}
	}
	boolean := func(key string, dst **bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = &b
		}
	}
	integer := func(key string, dst **int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = &n
		}
	}
	duration := func(key string, dst **timex.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = &timex.Duration{Duration: d}
		}
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOCAL_DB_PATH", &c.LocalDBPath)
	str("REMOTE_BACKEND", &c.RemoteBackend)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("FIREBASE_PROJECT_ID", &c.FirebaseProjectID)
	str("FIREBASE_CREDENTIALS_FILE", &c.FirebaseCredentialsFile)
	boolean("PUSH_ENABLED", &c.PushEnabled)
	str("SECRET_KEY", &c.SecretKey)
	duration("TOKEN_VALIDITY", &c.TokenValidity)
	duration("ONLINE_CHECK_INTERVAL", &c.OnlineCheckInterval)
	boolean("CLOUD_ONLY", &c.CloudOnly)
	integer("NOTIFICATION_LIMIT", &c.NotificationLimit)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_FILE", &c.LogFile)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.apply(config)
	return nil
}

func osLookup(key string) (string, bool) { return os.LookupEnv(key) }
