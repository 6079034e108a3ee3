package indexer

// Processor defaults
const (
	DefaultBatchSize          = 32
	DefaultMaxConcurrency     = 3
	DefaultRequestsPerMinute  = 120
	DefaultMaxBatchTokens     = 8000
	DefaultMaxItemTokens      = 2000
	DefaultMaxTransientErrors = 5

	// ProbeText is sent once per run to tell content-specific rejections
	// from provider-wide ones.
	ProbeText = "semindex connectivity probe"
)

// Config contains configuration for the processor
type Config struct {
	BatchSize         int `yaml:"batch_size" json:"batchSize"`                 // texts per request, capped by the provider
	MaxConcurrency    int `yaml:"max_concurrency" json:"maxConcurrency"`       // in-flight requests
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requestsPerMinute"` // <= 0 disables the limiter
	MaxBatchTokens    int `yaml:"max_batch_tokens" json:"maxBatchTokens"`
	MaxItemTokens     int `yaml:"max_item_tokens" json:"maxItemTokens"` // longer texts are truncated
	// MaxTransientErrors is the number of transiently failed batches a run
	// absorbs before aborting.
	MaxTransientErrors int `yaml:"max_transient_errors" json:"maxTransientErrors"`
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:          DefaultBatchSize,
		MaxConcurrency:     DefaultMaxConcurrency,
		RequestsPerMinute:  DefaultRequestsPerMinute,
		MaxBatchTokens:     DefaultMaxBatchTokens,
		MaxItemTokens:      DefaultMaxItemTokens,
		MaxTransientErrors: DefaultMaxTransientErrors,
	}
}

// ApplyDefaults fills zero fields. RequestsPerMinute is left alone when
// negative so the limiter can be switched off.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.MaxBatchTokens <= 0 {
		c.MaxBatchTokens = d.MaxBatchTokens
	}
	if c.MaxItemTokens <= 0 {
		c.MaxItemTokens = d.MaxItemTokens
	}
	if c.MaxItemTokens > c.MaxBatchTokens {
		c.MaxItemTokens = c.MaxBatchTokens
	}
	if c.MaxTransientErrors <= 0 {
		c.MaxTransientErrors = d.MaxTransientErrors
	}
}
