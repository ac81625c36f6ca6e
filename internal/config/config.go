package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Configuration keys. File, environment and command-line sources all use
// these names.
const (
	KeyAPIURL          = "API_URL"
	KeyAPITimeout      = "API_TIMEOUT"
	KeyDataFolder      = "DATA_FOLDER"
	KeyOutputPrefix    = "OUTPUT_PREFIX"
	KeyLogLevel        = "LOG_LEVEL"
	KeyRunInterval     = "RUN_INTERVAL"
	KeyLedgerDriver    = "LEDGER_DRIVER"
	KeyLedgerDSN       = "LEDGER_DSN"
	KeyAMQPURL         = "AMQP_URL"
	KeyAMQPExchange    = "AMQP_EXCHANGE"
	KeyAMQPRoutingKey  = "AMQP_ROUTING_KEY"
	KeyAMQPQueue       = "AMQP_QUEUE"
	KeyMetricsTextfile = "METRICS_TEXTFILE"
)

const (
	maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)
	minRunInterval    = time.Second
)

var knownKeys = []string{
	KeyAPIURL,
	KeyAPITimeout,
	KeyDataFolder,
	KeyOutputPrefix,
	KeyLogLevel,
	KeyRunInterval,
	KeyLedgerDriver,
	KeyLedgerDSN,
	KeyAMQPURL,
	KeyAMQPExchange,
	KeyAMQPRoutingKey,
	KeyAMQPQueue,
	KeyMetricsTextfile,
}

// IsKnownKey reports whether key is a recognised configuration key.
func IsKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Values is one configuration source keyed by configuration key.
type Values map[string]string

type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// SlogLevel maps the level onto log/slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarning:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LedgerSettings struct {
	Driver string // "", "postgres" or "sqlite"
	DSN    string
}

// Enabled reports whether runs should be recorded.
func (l LedgerSettings) Enabled() bool {
	return l.Driver != ""
}

type PublisherSettings struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func (p PublisherSettings) Enabled() bool {
	return p.URL != ""
}

// Settings is the resolved configuration for one process run. It is passed
// by value and never modified after Resolve returns.
type Settings struct {
	APIURL          string
	APITimeout      time.Duration
	DataFolder      string
	OutputPrefix    string
	LogLevel        LogLevel
	RunInterval     time.Duration
	Ledger          LedgerSettings
	Publisher       PublisherSettings
	MetricsTextfile string
}

// ConfigurationError reports a missing or malformed setting.
type ConfigurationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Defaults returns the built-in values.
func Defaults() Values {
	return Values{
		KeyAPIURL:         "https://jsonplaceholder.typicode.com/posts",
		KeyAPITimeout:     "30",
		KeyDataFolder:     "data",
		KeyOutputPrefix:   "processed_",
		KeyLogLevel:       string(LogLevelInfo),
		KeyRunInterval:    "0s",
		KeyAMQPExchange:   "data_digest",
		KeyAMQPRoutingKey: "runs",
		KeyAMQPQueue:      "digest_runs",
	}
}

// Resolve merges the sources in ascending priority and validates the result.
// A key present in a higher-priority source wins even if its value is empty.
func Resolve(defaults, file, env, cli Values) (Settings, error) {
	merged := make(Values)
	for _, src := range []Values{defaults, file, env, cli} {
		for k, v := range src {
			if IsKnownKey(k) {
				merged[k] = v
			}
		}
	}

	var s Settings

	apiURL, err := required(merged, KeyAPIURL)
	if err != nil {
		return Settings{}, err
	}
	if err := validateURL(apiURL); err != nil {
		return Settings{}, err
	}
	s.APIURL = apiURL

	rawTimeout, err := required(merged, KeyAPITimeout)
	if err != nil {
		return Settings{}, err
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(rawTimeout))
	if err != nil {
		return Settings{}, &ConfigurationError{Key: KeyAPITimeout, Value: rawTimeout, Reason: "must be an integer number of seconds"}
	}
	if seconds <= 0 {
		return Settings{}, &ConfigurationError{Key: KeyAPITimeout, Value: rawTimeout, Reason: "must be greater than zero"}
	}
	if int64(seconds) > maxTimeoutSeconds {
		return Settings{}, &ConfigurationError{Key: KeyAPITimeout, Value: rawTimeout, Reason: fmt.Sprintf("must not exceed %d seconds", maxTimeoutSeconds)}
	}
	s.APITimeout = time.Duration(seconds) * time.Second

	if s.DataFolder, err = required(merged, KeyDataFolder); err != nil {
		return Settings{}, err
	}
	s.OutputPrefix = merged[KeyOutputPrefix]

	rawLevel, err := required(merged, KeyLogLevel)
	if err != nil {
		return Settings{}, err
	}
	if s.LogLevel, err = parseLogLevel(rawLevel); err != nil {
		return Settings{}, err
	}

	if raw := strings.TrimSpace(merged[KeyRunInterval]); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Settings{}, &ConfigurationError{Key: KeyRunInterval, Value: raw, Reason: "must be a duration such as 90s or 5m"}
		}
		if d < 0 {
			return Settings{}, &ConfigurationError{Key: KeyRunInterval, Value: raw, Reason: "must not be negative"}
		}
		// File names carry a one-second timestamp.
		if d > 0 && d < minRunInterval {
			return Settings{}, &ConfigurationError{Key: KeyRunInterval, Value: raw, Reason: "must be at least 1s"}
		}
		s.RunInterval = d
	}

	s.Ledger = LedgerSettings{
		Driver: strings.ToLower(strings.TrimSpace(merged[KeyLedgerDriver])),
		DSN:    merged[KeyLedgerDSN],
	}
	switch s.Ledger.Driver {
	case "", "postgres", "sqlite":
	default:
		return Settings{}, &ConfigurationError{Key: KeyLedgerDriver, Value: merged[KeyLedgerDriver], Reason: "must be postgres or sqlite"}
	}
	if s.Ledger.Enabled() && s.Ledger.DSN == "" {
		return Settings{}, &ConfigurationError{Key: KeyLedgerDSN, Reason: "required when " + KeyLedgerDriver + " is set"}
	}

	s.Publisher = PublisherSettings{
		URL:        merged[KeyAMQPURL],
		Exchange:   merged[KeyAMQPExchange],
		RoutingKey: merged[KeyAMQPRoutingKey],
		QueueName:  merged[KeyAMQPQueue],
	}
	if s.Publisher.Enabled() && (s.Publisher.Exchange == "" || s.Publisher.QueueName == "") {
		return Settings{}, &ConfigurationError{Key: KeyAMQPExchange, Value: s.Publisher.Exchange, Reason: "exchange and queue are required when " + KeyAMQPURL + " is set"}
	}

	s.MetricsTextfile = merged[KeyMetricsTextfile]

	return s, nil
}

func required(v Values, key string) (string, error) {
	val, ok := v[key]
	if !ok || strings.TrimSpace(val) == "" {
		return "", &ConfigurationError{Key: key, Reason: "is required"}
	}
	return val, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ConfigurationError{Key: KeyAPIURL, Value: raw, Reason: "must be an absolute URL"}
	}
	return nil
}

func parseLogLevel(raw string) (LogLevel, error) {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case LogLevelDebug:
		return LogLevelDebug, nil
	case LogLevelInfo:
		return LogLevelInfo, nil
	case LogLevelWarning, "WARN":
		return LogLevelWarning, nil
	case LogLevelError:
		return LogLevelError, nil
	}
	return "", &ConfigurationError{Key: KeyLogLevel, Value: raw, Reason: "must be one of DEBUG, INFO, WARNING, ERROR"}
}
