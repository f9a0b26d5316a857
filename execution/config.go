package execution

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/internal/metrics"
)

// Defaults.
const (
	DefaultExecutionTimeout = 10 * time.Minute
	DefaultToolTimeout      = 5 * time.Minute
	DefaultMaxConcurrent    = 10
	DefaultQueueSize        = 256
	DefaultLookupCacheSize  = 1024

	defaultPollInterval = time.Second
	defaultAppName      = "AG-UI Agent"
)

// Extractor derives an identity value from a run request.
type Extractor func(*agui.RunAgentInput) string

type config struct {
	appName          string
	appNameExtractor Extractor
	userID           string
	userIDExtractor  Extractor

	executionTimeout time.Duration
	toolTimeout      time.Duration
	maxConcurrent    int
	queueSize        int
	lookupCacheSize  int
	pollInterval     time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*config)

// WithAppName sets a static application name for every request.
func WithAppName(name string) Option { return func(c *config) { c.appName = name } }

// WithAppNameExtractor derives the application name per request.
func WithAppNameExtractor(fn Extractor) Option { return func(c *config) { c.appNameExtractor = fn } }

// WithUserID sets a static user id for every request.
func WithUserID(id string) Option { return func(c *config) { c.userID = id } }

// WithUserIDExtractor derives the user id per request.
func WithUserIDExtractor(fn Extractor) Option { return func(c *config) { c.userIDExtractor = fn } }

// WithExecutionTimeout bounds the wall-clock time of one execution.
func WithExecutionTimeout(d time.Duration) Option {
	return func(c *config) { c.executionTimeout = d }
}

// WithToolTimeout bounds a single backend tool call. It is handed to the
// runner on every invocation.
func WithToolTimeout(d time.Duration) Option { return func(c *config) { c.toolTimeout = d } }

// WithMaxConcurrent caps the number of registered executions.
func WithMaxConcurrent(n int) Option { return func(c *config) { c.maxConcurrent = n } }

// WithQueueSize sets the buffer of each execution's event channel.
func WithQueueSize(n int) Option { return func(c *config) { c.queueSize = n } }

// WithLookupCacheSize sets how many thread identities are cached.
func WithLookupCacheSize(n int) Option { return func(c *config) { c.lookupCacheSize = n } }

// WithPollInterval sets how often a waiting stream checks for timeouts.
func WithPollInterval(d time.Duration) Option { return func(c *config) { c.pollInterval = d } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithClock sets the clock used for staleness checks.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

var (
	errAppNameConflict = errors.New("execution: cannot specify both app name and app name extractor")
	errUserIDConflict  = errors.New("execution: cannot specify both user id and user id extractor")
)

func newConfig(opts []Option) (config, error) {
	c := config{
		executionTimeout: DefaultExecutionTimeout,
		toolTimeout:      DefaultToolTimeout,
		maxConcurrent:    DefaultMaxConcurrent,
		queueSize:        DefaultQueueSize,
		lookupCacheSize:  DefaultLookupCacheSize,
		pollInterval:     defaultPollInterval,
		logger:           slog.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.appName != "" && c.appNameExtractor != nil {
		return c, errAppNameConflict
	}
	if c.userID != "" && c.userIDExtractor != nil {
		return c, errUserIDConflict
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxConcurrent <= 0 {
		c.maxConcurrent = DefaultMaxConcurrent
	}
	if c.queueSize <= 0 {
		c.queueSize = DefaultQueueSize
	}
	if c.lookupCacheSize <= 0 {
		c.lookupCacheSize = DefaultLookupCacheSize
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c, nil
}
