package manager

import (
	"time"

	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/searcher"
)

// Manager defaults
const (
	DefaultCreateDelay = 2 * time.Second
	DefaultQuietPeriod = 10 * time.Second

	DefaultOutageCooldown    = 30 * time.Second
	DefaultTransientCooldown = 5 * time.Minute
	DefaultLicenseCooldown   = 6 * time.Hour
	DefaultErrorCooldown     = 5 * time.Minute

	DefaultQueryCacheSize = 256
	DefaultQueryCacheTTL  = 5 * time.Minute
	DefaultQueryTimeout   = 30 * time.Second

	DefaultMaxRepresentativeChunks = 3
)

// Config tunes the manager. Zero fields take defaults.
type Config struct {
	Processor indexer.Config `yaml:"-" json:"processor"`

	CreateDelay time.Duration `yaml:"create_delay" json:"createDelay"` // create and rename
	QuietPeriod time.Duration `yaml:"quiet_period" json:"quietPeriod"` // modify

	OutageCooldown    time.Duration `yaml:"outage_cooldown" json:"outageCooldown"`
	TransientCooldown time.Duration `yaml:"transient_cooldown" json:"transientCooldown"`
	LicenseCooldown   time.Duration `yaml:"license_cooldown" json:"licenseCooldown"`
	ErrorCooldown     time.Duration `yaml:"error_cooldown" json:"errorCooldown"`

	QueryCacheSize int           `yaml:"query_cache_size" json:"queryCacheSize"`
	QueryCacheTTL  time.Duration `yaml:"query_cache_ttl" json:"queryCacheTTL"`
	QueryTimeout   time.Duration `yaml:"query_timeout" json:"queryTimeout"`

	MaxRepresentativeChunks int     `yaml:"max_representative_chunks" json:"maxRepresentativeChunks"`
	RRFConstant             float64 `yaml:"rrf_constant" json:"rrfConstant"`
	RawWeight               float64 `yaml:"raw_weight" json:"rawWeight"`
	// LexicalWeight scales the title/excerpt overlap boost. Negative disables it.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexicalWeight"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Processor:               indexer.DefaultConfig(),
		CreateDelay:             DefaultCreateDelay,
		QuietPeriod:             DefaultQuietPeriod,
		OutageCooldown:          DefaultOutageCooldown,
		TransientCooldown:       DefaultTransientCooldown,
		LicenseCooldown:         DefaultLicenseCooldown,
		ErrorCooldown:           DefaultErrorCooldown,
		QueryCacheSize:          DefaultQueryCacheSize,
		QueryCacheTTL:           DefaultQueryCacheTTL,
		QueryTimeout:            DefaultQueryTimeout,
		MaxRepresentativeChunks: DefaultMaxRepresentativeChunks,
		RRFConstant:             searcher.DefaultRRFConstant,
		RawWeight:               searcher.DefaultRawWeight,
		LexicalWeight:           searcher.DefaultLexicalWeight,
	}
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	c.Processor.ApplyDefaults()
	setDuration(&c.CreateDelay, d.CreateDelay)
	setDuration(&c.QuietPeriod, d.QuietPeriod)
	setDuration(&c.OutageCooldown, d.OutageCooldown)
	setDuration(&c.TransientCooldown, d.TransientCooldown)
	setDuration(&c.LicenseCooldown, d.LicenseCooldown)
	setDuration(&c.ErrorCooldown, d.ErrorCooldown)
	setDuration(&c.QueryCacheTTL, d.QueryCacheTTL)
	setDuration(&c.QueryTimeout, d.QueryTimeout)
	if c.QueryCacheSize <= 0 {
		c.QueryCacheSize = d.QueryCacheSize
	}
	if c.MaxRepresentativeChunks <= 0 {
		c.MaxRepresentativeChunks = d.MaxRepresentativeChunks
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	if c.RawWeight <= 0 || c.RawWeight > 1 {
		c.RawWeight = d.RawWeight
	}
	if c.LexicalWeight == 0 {
		c.LexicalWeight = d.LexicalWeight
	}
}

func (c Config) lexicalWeight() float64 {
	if c.LexicalWeight < 0 {
		return 0
	}
	return c.LexicalWeight
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
