package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/shopkeeper/internal/flagx"
	"github.com/dmitrijs2005/shopkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Pointer fields tell "absent"
// apart from a zero value so a partial file only overrides what it names.
type JsonConfig struct {
	HTTPAddr                *string         `json:"http_addr"`
	LocalDBPath             *string         `json:"local_db_path"`
	RemoteBackend           *string         `json:"remote_backend"`
	DatabaseDSN             *string         `json:"database_dsn"`
	FirebaseProjectID       *string         `json:"firebase_project_id"`
	FirebaseCredentialsFile *string         `json:"firebase_credentials_file"`
	PushEnabled             *bool           `json:"push_enabled"`
	SecretKey               *string         `json:"secret_key"`
	TokenValidity           *timex.Duration `json:"token_validity"`
	OnlineCheckInterval     *timex.Duration `json:"online_check_interval"`
	CloudOnly               *bool           `json:"cloud_only"`
	NotificationLimit       *int            `json:"notification_limit"`
	LogLevel                *string         `json:"log_level"`
	LogFormat               *string         `json:"log_format"`
	LogFile                 *string         `json:"log_file"`
}

func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setIf(&config.HTTPAddr, c.HTTPAddr)
	setIf(&config.LocalDBPath, c.LocalDBPath)
	setIf(&config.RemoteBackend, c.RemoteBackend)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.FirebaseProjectID, c.FirebaseProjectID)
	setIf(&config.FirebaseCredentialsFile, c.FirebaseCredentialsFile)
	setIf(&config.PushEnabled, c.PushEnabled)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.CloudOnly, c.CloudOnly)
	setIf(&config.NotificationLimit, c.NotificationLimit)
	setIf(&config.LogLevel, c.LogLevel)
	setIf(&config.LogFormat, c.LogFormat)
	setIf(&config.LogFile, c.LogFile)
	if c.TokenValidity != nil {
		config.TokenValidity = c.TokenValidity.Duration
	}
	if c.OnlineCheckInterval != nil {
		config.OnlineCheckInterval = c.OnlineCheckInterval.Duration
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
