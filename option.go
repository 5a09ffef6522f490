package hlsdl

import (
	"net/http"
	"time"
)

// Option contains every configuration knob enumerated in the external
// interfaces contract. Zero values are filled in from DefaultOptions by
// NewProcessor.
type Option struct {
	// WorkDir is the scratch directory for segment files and the progress file.
	WorkDir string

	// OutputPath is where the combined output file is written.
	OutputPath string

	// NumThreads is the worker pool size, at least 1.
	NumThreads int

	// CleanupSegmentsOnComplete removes segment files after a successful
	// combine. A nil value means "unset, use the default"; Combine needs to
	// tell "caller didn't set this" apart from "caller explicitly set false",
	// which a plain bool defaulting to true cannot do.
	CleanupSegmentsOnComplete *bool

	// StrictParse fails the parse on any unrecognized #EXT- tag and on any
	// segment whose duration exceeds the target duration.
	StrictParse bool

	// FetchConnectTimeout is added to FetchReadTimeout to form the single
	// overall timeout of each HTTP request; connection establishment has no
	// separate limit of its own.
	FetchConnectTimeout time.Duration

	// FetchReadTimeout is added to FetchConnectTimeout to form the single
	// overall timeout of each HTTP request, body read included.
	FetchReadTimeout time.Duration

	// MaxRetries is the maximum number of attempts per fetch (including the first).
	MaxRetries int

	// RetryBaseDelay is the base used by the exponential backoff: base * 2^k.
	RetryBaseDelay time.Duration

	// ShutdownGrace bounds how long pool shutdown waits for outstanding tasks.
	ShutdownGrace time.Duration

	// Combiner selects the default Combiner implementation: "concat" or "ffmpeg".
	Combiner string

	// RateLimitBytesPerSec throttles segment reads when > 0.
	RateLimitBytesPerSec int64

	// Headers are merged into every outgoing request.
	Headers http.Header

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Proxy is an optional proxy URL for the HTTP client.
	Proxy string

	// Cookie is an optional Netscape-format cookie file path.
	Cookie string

	// NoCache disables the on-disk HTTP response cache.
	NoCache bool

	Debug   bool
	Verbose bool
	Silent  bool
}

// DefaultOptions holds the package defaults named in the external
// interfaces contract. Callers should copy it (via Combine) rather than
// mutate it directly.
var DefaultOptions = &Option{
	WorkDir:                   "hlsdl_work",
	OutputPath:                "output.ts",
	NumThreads:                1,
	CleanupSegmentsOnComplete: boolPtr(true),
	StrictParse:               false,
	FetchConnectTimeout:       10 * time.Second,
	FetchReadTimeout:          10 * time.Second,
	MaxRetries:                3,
	RetryBaseDelay:            1 * time.Second,
	ShutdownGrace:             5 * time.Second,
	Combiner:                  "concat",
}

// Combine overlays non-zero fields of other onto a copy of o and returns it.
func (o Option) Combine(other Option) Option {
	if other.WorkDir != "" {
		o.WorkDir = other.WorkDir
	}
	if other.OutputPath != "" {
		o.OutputPath = other.OutputPath
	}
	if other.NumThreads > 0 {
		o.NumThreads = other.NumThreads
	}
	if other.FetchConnectTimeout > 0 {
		o.FetchConnectTimeout = other.FetchConnectTimeout
	}
	if other.FetchReadTimeout > 0 {
		o.FetchReadTimeout = other.FetchReadTimeout
	}
	if other.MaxRetries > 0 {
		o.MaxRetries = other.MaxRetries
	}
	if other.RetryBaseDelay > 0 {
		o.RetryBaseDelay = other.RetryBaseDelay
	}
	if other.ShutdownGrace > 0 {
		o.ShutdownGrace = other.ShutdownGrace
	}
	if other.Combiner != "" {
		o.Combiner = other.Combiner
	}
	if other.RateLimitBytesPerSec > 0 {
		o.RateLimitBytesPerSec = other.RateLimitBytesPerSec
	}
	if other.Headers != nil {
		o.Headers = other.Headers
	}
	if other.UserAgent != "" {
		o.UserAgent = other.UserAgent
	}
	if other.Proxy != "" {
		o.Proxy = other.Proxy
	}
	if other.Cookie != "" {
		o.Cookie = other.Cookie
	}
	if other.CleanupSegmentsOnComplete != nil {
		o.CleanupSegmentsOnComplete = other.CleanupSegmentsOnComplete
	}
	o.StrictParse = other.StrictParse || o.StrictParse
	o.NoCache = other.NoCache || o.NoCache
	o.Debug = other.Debug || o.Debug
	o.Verbose = other.Verbose || o.Verbose
	o.Silent = other.Silent || o.Silent
	return o
}

// boolPtr is a convenience constructor for the handful of Option fields
// that need to distinguish "unset" from "explicitly false".
func boolPtr(b bool) *bool { return &b }

// cleanupSegmentsOnComplete reports the effective cleanup-on-complete
// setting, treating an unset pointer as the DefaultOptions value (true).
func (o Option) cleanupSegmentsOnComplete() bool {
	return o.CleanupSegmentsOnComplete == nil || *o.CleanupSegmentsOnComplete
}
