package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "shopkeeper.db", c.LocalDBPath)
	assert.Equal(t, BackendMemory, c.RemoteBackend)
	assert.Equal(t, 5, c.NotificationLimit)
	assert.Equal(t, 5*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 12*time.Hour, c.TokenValidity)
	assert.False(t, c.CloudOnly)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_NoArgsGivesDefaults(t *testing.T) {
	c, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), c))
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"http_addr":             ":9000",
		"local_db_path":         "/var/lib/shop.db",
		"online_check_interval": "10s",
		"token_validity":        "1h",
		"log_format":            "console",
	})

	c, err := LoadConfig([]string{"-c", path, "-a", ":7000", "-n", "8"})
	require.NoError(t, err)

	want := defaults()
	want.HTTPAddr = ":7000"
	want.LocalDBPath = "/var/lib/shop.db"
	want.OnlineCheckInterval = 10 * time.Second
	want.TokenValidity = time.Hour
	want.LogFormat = "console"
	want.NotificationLimit = 8

	assert.Empty(t, cmp.Diff(want, c))
}

func TestLoadConfig_SubUnitDurationsSurviveFlags(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"token_validity": "90s"})
	t.Setenv("SHOPKEEPER_ONLINE_CHECK_INTERVAL", "750ms")

	c, err := LoadConfig([]string{"-c", path, "-a", ":7000"})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.TokenValidity)
	assert.Equal(t, 750*time.Millisecond, c.OnlineCheckInterval)

	c, err = LoadConfig([]string{"-c", path, "-i", "3"})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.TokenValidity)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file", args: []string{"-c", filepath.Join(dir, "nope.json")}},
		{name: "invalid json", args: []string{"-config", bad}},
		{name: "bad flag value", args: []string{"-n", "many"}},
		{name: "unknown backend", args: []string{"-b", "dynamo"}},
		{name: "firestore without project", args: []string{"-b", "firestore"}},
		{name: "push without firestore", args: []string{"-push"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseJson_PartialFileKeepsOtherValues(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"remote_backend": "postgres", "cloud_only": true})

	c := defaults()
	require.NoError(t, parseJson(c, []string{"-config", path}))

	want := defaults()
	want.RemoteBackend = BackendPostgres
	want.CloudOnly = true
	assert.Empty(t, cmp.Diff(want, c))
}

func TestParseFlags(t *testing.T) {
	c := defaults()
	args := []string{
		"-a", "127.0.0.1:9090", "-l", "pos.db", "-b", "firestore", "-p", "acme-pos",
		"-f", "/etc/sa.json", "-s", "secret", "-t", "30", "-i", "2", "-push", "-o",
		"-v", "debug", "-g", "text", "-log-file", "shop.log", "-unrelated", "x",
	}
	require.NoError(t, parseFlags(c, args))

	want := &Config{
		HTTPAddr:                "127.0.0.1:9090",
		LocalDBPath:             "pos.db",
		RemoteBackend:           BackendFirestore,
		DatabaseDSN:             defaults().DatabaseDSN,
		FirebaseProjectID:       "acme-pos",
		FirebaseCredentialsFile: "/etc/sa.json",
		PushEnabled:             true,
		SecretKey:               "secret",
		TokenValidity:           30 * time.Minute,
		OnlineCheckInterval:     2 * time.Second,
		CloudOnly:               true,
		NotificationLimit:       5,
		LogLevel:                "debug",
		LogFormat:               "text",
		LogFile:                 "shop.log",
	}
	assert.Empty(t, cmp.Diff(want, c))
	assert.NoError(t, c.Validate())
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseEnv(t *testing.T) {
	c := defaults()
	err := parseEnv(c, mapLookup(map[string]string{
		"SHOPKEEPER_REMOTE_BACKEND":        "postgres",
		"SHOPKEEPER_DATABASE_DSN":          "postgres://pos@db/pos",
		"SHOPKEEPER_CLOUD_ONLY":            "true",
		"SHOPKEEPER_NOTIFICATION_LIMIT":    "9",
		"SHOPKEEPER_ONLINE_CHECK_INTERVAL": "750ms",
		"SHOPKEEPER_LOG_FILE":              "/var/log/shop.log",
		"UNRELATED":                        "x",
	}))
	require.NoError(t, err)

	want := defaults()
	want.RemoteBackend = BackendPostgres
	want.DatabaseDSN = "postgres://pos@db/pos"
	want.CloudOnly = true
	want.NotificationLimit = 9
	want.OnlineCheckInterval = 750 * time.Millisecond
	want.LogFile = "/var/log/shop.log"
	assert.Empty(t, cmp.Diff(want, c))
}

func TestParseEnv_BadValuesLeaveConfigUntouched(t *testing.T) {
	c := defaults()
	err := parseEnv(c, mapLookup(map[string]string{
		"SHOPKEEPER_HTTP_ADDR":          ":1",
		"SHOPKEEPER_PUSH_ENABLED":       "sometimes",
		"SHOPKEEPER_NOTIFICATION_LIMIT": "lots",
		"SHOPKEEPER_TOKEN_VALIDITY":     "forever",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHOPKEEPER_PUSH_ENABLED")
	assert.Contains(t, err.Error(), "SHOPKEEPER_TOKEN_VALIDITY")
	assert.Empty(t, cmp.Diff(defaults(), c))
}

func TestLoadConfig_EnvSitsBetweenFileAndFlags(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"http_addr": ":9000", "log_level": "warn"})
	t.Setenv("SHOPKEEPER_HTTP_ADDR", ":9100")
	t.Setenv("SHOPKEEPER_LOG_FORMAT", "text")

	c, err := LoadConfig([]string{"-c", path, "-g", "console"})
	require.NoError(t, err)

	assert.Equal(t, ":9100", c.HTTPAddr)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, "console", c.LogFormat)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOPKEEPER_NOTIFICATION_LIMIT=7\n"), 0o600))

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	// godotenv writes into the process environment
	t.Setenv("SHOPKEEPER_NOTIFICATION_LIMIT", "")
	require.NoError(t, os.Unsetenv("SHOPKEEPER_NOTIFICATION_LIMIT"))

	c, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 7, c.NotificationLimit)
}
