package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the process configuration. Priority: flag > env > default.
type Config struct {
	APIURL      string `env:"API_URL" default:"http://localhost:8000/api/v1"`
	SessionFile string `env:"SESSION_FILE" default:".climate-session.json"`
	CookieFile  string `env:"COOKIE_FILE" default:".climate-cookies.json"`
	LogLevel    string `env:"LOG_LEVEL" default:"warn"`
	LogFile     string `env:"LOG_FILE"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	MaxRetries      int           `env:"HTTP_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `env:"HTTP_RETRY_DELAY" default:"500ms"`
	BreakerFailures int           `env:"BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `env:"BREAKER_TIMEOUT" default:"30s"`

	CacheTTL  time.Duration `env:"CACHE_TTL" default:"5m"`
	CacheSize int           `env:"CACHE_SIZE" default:"64"`

	Username string `env:"CLIMATE_USERNAME"`
	Password string `env:"CLIMATE_PASSWORD"`
}

// loadConfig reads .env, the environment and the global flags in args, and
// returns the config plus the remaining arguments (command and its flags).
func loadConfig(args []string, stderr io.Writer) (*Config, []string, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	fs := flag.NewFlagSet("climate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs) }
	flagAPIURL := fs.String("api-url", "", "API base URL (default: http://localhost:8000/api/v1 or API_URL env)")
	flagSessionFile := fs.String("session-file", "", "Session file (default: .climate-session.json or SESSION_FILE env)")
	flagCookieFile := fs.String("cookie-file", "", "Cookie jar file (default: .climate-cookies.json or COOKIE_FILE env)")
	flagLogLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (default: warn or LOG_LEVEL env)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg.APIURL = strings.TrimRight(getConfig(*flagAPIURL, cfg.APIURL), "/")
	cfg.SessionFile = getConfig(*flagSessionFile, cfg.SessionFile)
	cfg.CookieFile = getConfig(*flagCookieFile, cfg.CookieFile)
	cfg.LogLevel = getConfig(*flagLogLevel, cfg.LogLevel)

	if err := validateAPIURL(cfg.APIURL); err != nil {
		return nil, nil, fmt.Errorf("invalid API_URL: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return nil, nil, errors.New("HTTP_MAX_RETRIES must not be negative")
	}
	if cfg.BreakerFailures < 0 {
		return nil, nil, errors.New("BREAKER_FAILURES must not be negative")
	}

	return &cfg, fs.Args(), nil
}

// getConfig returns flagValue when set, otherwise the env-or-default value.
func getConfig(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return envValue
}

// validateAPIURL validates that the API URL is properly formatted
func validateAPIURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("API URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// warnInsecure prints the plaintext warning for http:// API URLs.
func warnInsecure(w io.Writer, apiURL string) {
	if !strings.HasPrefix(strings.ToLower(apiURL), "http://") {
		return
	}
	fmt.Fprintln(w, "⚠️  WARNING: Using HTTP instead of HTTPS. Passwords and session cookies will be transmitted in plaintext!")
	fmt.Fprintln(w, "⚠️  This is only safe for local development. Use HTTPS in production.")
	fmt.Fprintln(w)
}

// newLogger builds the zap logger. With a TUI on the terminal and no LOG_FILE
// nothing is logged, so the screen is not corrupted.
func newLogger(cfg *Config, tty bool) (*zap.Logger, error) {
	if tty && cfg.LogFile == "" {
		return zap.NewNop(), nil
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Encoding = "console"
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{"stderr"}
	if cfg.LogFile != "" {
		zc.OutputPaths = []string{cfg.LogFile}
	}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, "Usage: climate [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fs.PrintDefaults()
}
