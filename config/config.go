package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool

	AirtableURL     string
	AirtableKey     string
	AirtableTimeout time.Duration
	SchemaTTL       time.Duration
	WebhookSecret   string

	AdminUser     string
	AdminPassword string

	AuditSchedule string
	PendingAfter  time.Duration
	TombstoneTTL  time.Duration

	PublicDir  string
	PrivateDir string
}

// ParseFlags loads an optional .env file, then parses the process arguments.
func ParseFlags() (Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return Parse(os.Args[1:])
}

// Parse reads the configuration from args. Every flag defaults to its
// environment variable, if set.
func Parse(args []string) (cfg Config, err error) {
	fs := flag.NewFlagSet("airform-sync", flag.ContinueOnError)

	var host string
	fs.StringVar(&host, "host", env("AIRFORM_HOST", "0.0.0.0"), "listen host name")
	var port uint
	fs.UintVar(&port, "port", envUint("AIRFORM_PORT", 80), "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", env("AIRFORM_DB_URL", "airform.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("AIRFORM_TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", envDuration("AIRFORM_TOKEN_TTL", 2*time.Minute), "access token TTL")
	fs.BoolVar(&cfg.Debug, "debug", env("AIRFORM_DEBUG", "") != "", "log at DEBUG level")

	fs.StringVar(&cfg.AirtableURL, "airtable-url", env("AIRTABLE_API_URL", "https://api.airtable.com/v0"), "Airtable REST API base URL")
	fs.StringVar(&cfg.AirtableKey, "airtable-key", env("AIRTABLE_API_KEY", ""), "Airtable personal access token")
	fs.DurationVar(&cfg.AirtableTimeout, "airtable-timeout", envDuration("AIRTABLE_TIMEOUT", 30*time.Second), "Airtable HTTP client timeout")
	fs.DurationVar(&cfg.SchemaTTL, "schema-ttl", envDuration("AIRFORM_SCHEMA_TTL", time.Minute), "how long a fetched table schema is reused")
	fs.StringVar(&cfg.WebhookSecret, "webhook-secret", env("AIRTABLE_WEBHOOK_SECRET", ""), "base64 MAC secret of the Airtable webhook (empty disables verification)")

	fs.StringVar(&cfg.AdminUser, "admin-user", env("AIRFORM_ADMIN_USER", ""), "admin account created at startup if missing")
	fs.StringVar(&cfg.AdminPassword, "admin-password", env("AIRFORM_ADMIN_PASSWORD", ""), "password of the bootstrap admin account")

	fs.StringVar(&cfg.AuditSchedule, "audit-schedule", env("AIRFORM_AUDIT_SCHEDULE", "@every 5m"), "cron spec of the sync audit jobs")
	fs.DurationVar(&cfg.PendingAfter, "pending-after", envDuration("AIRFORM_PENDING_AFTER", 10*time.Minute), "age after which a pending response is reported as stuck")
	fs.DurationVar(&cfg.TombstoneTTL, "tombstone-ttl", envDuration("AIRFORM_TOMBSTONE_TTL", 24*time.Hour), "how long upstream deletions are remembered")

	fs.StringVar(&cfg.PublicDir, "public-dir", env("AIRFORM_PUBLIC_DIR", "public"), "directory of public static files")
	fs.StringVar(&cfg.PrivateDir, "private-dir", env("AIRFORM_PRIVATE_DIR", "private"), "directory of admin static files")

	err = fs.Parse(args)
	if err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))

	switch {
	case cfg.TokenSecret == "":
		err = errors.New("missing parameter -token-secret")
	case cfg.AdminUser != "" && cfg.AdminPassword == "":
		err = errors.New("missing parameter -admin-password")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint) uint {
	n, err := strconv.ParseUint(env(key, ""), 10, 32)
	if err != nil {
		return fallback
	}
	return uint(n)
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(env(key, ""))
	if err != nil {
		return fallback
	}
	return d
}
