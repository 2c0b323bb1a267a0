package constants

import "time"

var CacheTTL = struct {
	Ranking time.Duration
}{
	Ranking: 10 * time.Minute, // identical idea + budget within 10m reuses the LLM ranking
}

var AnalysisDefaults = struct {
	MaxPersonas   int
	MockRatingMin float64
	MockRatingMax float64
	// Remote replies that omit these fields get the values below.
	RemoteRelevance float64
	RemoteReason    string
}{
	MaxPersonas:     5,
	MockRatingMin:   5.5,
	MockRatingMax:   9.5,
	RemoteRelevance: 0.8,
	RemoteReason:    "Expert in relevant field",
}

// RemotePlaceholders fill display fields a remote persona object left out.
var RemotePlaceholders = struct {
	Name       string
	Title      string
	Location   string
	Industry   string
	Experience string
	KeyInsight string
}{
	Name:       "Unknown Expert",
	Title:      "Industry Expert",
	Location:   "Unknown",
	Industry:   "General",
	Experience: "Not specified",
	KeyInsight: "No insight provided",
}

var SentimentThresholds = struct {
	Positive float64
	Neutral  float64
}{
	Positive: 8.0,
	Neutral:  6.5,
}

var SummaryRules = struct {
	ConcernBelow        float64
	OpportunityAtLeast  float64
	MaxItems            int
	PositiveShare       float64
	NeutralShare        float64
	NoConcerns          string
	NoOpportunities     string
	RatingDecimalPlaces int
}{
	ConcernBelow:        7.0,
	OpportunityAtLeast:  8.0,
	MaxItems:            3,
	PositiveShare:       0.6,
	NeutralShare:        0.3,
	NoConcerns:          "No major concerns identified",
	NoOpportunities:     "No standout opportunities identified",
	RatingDecimalPlaces: 1,
}

var WebSocketConfig = struct {
	WriteTimeout         time.Duration
	PongWait             time.Duration
	PingInterval         time.Duration
	ReadLimit            int64
	SendBufferSize       int
	HandshakeTimeout     time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}{
	WriteTimeout:         10 * time.Second,
	PongWait:             60 * time.Second,
	PingInterval:         54 * time.Second,
	ReadLimit:            64 * 1024,
	SendBufferSize:       16,
	HandshakeTimeout:     10 * time.Second,
	MaxReconnectAttempts: 5,
	ReconnectDelay:       5 * time.Second,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
	KeyPrefix    string
}{
	ReadyTimeout: 5 * time.Second,
	KeyPrefix:    "persona:rank:",
}

var AIInputLimits = struct {
	MaxIdeaLength       int
	MaxAttachmentBytes  int64
	MaxAttachmentPrompt int
}{
	MaxIdeaLength:       4000,
	MaxAttachmentBytes:  5 * 1024 * 1024,
	MaxAttachmentPrompt: 2000, // runes of each text attachment forwarded to the LLM
}

var AttachmentConfig = struct {
	MaxConcurrentReads int
}{
	MaxConcurrentReads: 4,
}

var RetryConfig = struct {
	BaseDelay time.Duration
	Jitter    time.Duration
}{
	BaseDelay: 500 * time.Millisecond,
	Jitter:    250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    10 * time.Minute,
	HealthCheckInterval: 2 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var APIConfig = struct {
	DefaultBaseURL  string
	DefaultTimeout  time.Duration
	DefaultRetries  int
	ShutdownTimeout time.Duration
	MaxRequestBytes int64
}{
	DefaultBaseURL:  "http://localhost:8000/api/v1",
	DefaultTimeout:  30 * time.Second,
	DefaultRetries:  2,
	ShutdownTimeout: 10 * time.Second,
	MaxRequestBytes: 8 * 1024 * 1024,
}

var DatabaseConfig = struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}{
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxLifetime: 5 * time.Minute,
}

// AnalysisHistory bounds GET /api/v1/analyses.
var AnalysisHistory = struct {
	DefaultLimit int
	MaxLimit     int
}{
	DefaultLimit: 20,
	MaxLimit:     100,
}
