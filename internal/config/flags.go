package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-l", "-b", "-d", "-p", "-f", "-s", "-t", "-i", "-n", "-o", "-push", "-v", "-g", "-log-file",
}

// parseFlags overlays command-line flags on config. Durations are given as
// whole minutes (-t) and seconds (-i).
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("shopkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP bind address")
	fs.StringVar(&config.LocalDBPath, "l", config.LocalDBPath, "local SQLite file")
	fs.StringVar(&config.RemoteBackend, "b", config.RemoteBackend, "remote backend (memory|firestore|postgres)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&config.FirebaseProjectID, "p", config.FirebaseProjectID, "Firebase project id")
	fs.StringVar(&config.FirebaseCredentialsFile, "f", config.FirebaseCredentialsFile, "Firebase credentials file")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "token validity (in minutes)")
	checkInterval := fs.Int("i", int(config.OnlineCheckInterval.Seconds()), "online status check interval (in seconds)")
	fs.IntVar(&config.NotificationLimit, "n", config.NotificationLimit, "notification history limit")
	fs.BoolVar(&config.CloudOnly, "o", config.CloudOnly, "cloud-only mode")
	fs.BoolVar(&config.PushEnabled, "push", config.PushEnabled, "enable FCM push")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "g", config.LogFormat, "log format (json|text|console)")
	fs.StringVar(&config.LogFile, "log-file", config.LogFile, "rotated log file (stdout when empty)")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	// only flags actually given replace durations from the file or env
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenValidity = time.Duration(*tokenValidity) * time.Minute
		case "i":
			config.OnlineCheckInterval = time.Duration(*checkInterval) * time.Second
		}
	})
	return nil
}
