// Package config loads runtime configuration for the shopkeeper node.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. SHOPKEEPER_* environment variables, e.g. SHOPKEEPER_REMOTE_BACKEND.
//     A .env file in the working directory is read first when present.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   HTTP bind address
//	-l string   local SQLite file path
//	-b string   remote backend: memory, firestore or postgres
//	-d string   PostgreSQL DSN for the postgres backend
//	-p string   Firebase project id
//	-f string   Firebase service account credentials file
//	-s string   JWT HMAC secret key
//	-t int      token validity (minutes)
//	-i int      online status check interval (seconds)
//	-n int      notification history limit per store
//	-o bool     cloud-only mode (no local cache)
//	-push bool  enable FCM topic push
//	-v string   log level
//	-g string   log format: json, text or console
//	-log-file string
//	            write logs to a size-rotated file instead of stdout
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "http_addr": ":8080",
//	  "local_db_path": "shop.db",
//	  "remote_backend": "firestore",
//	  "firebase_project_id": "my-shop",
//	  "online_check_interval": "5s"
//	}
package config
