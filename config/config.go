package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"lobster/domain/orderbook"
)

const envPrefix = "LOBSTER"

type Config struct {
	Instrument string           `mapstructure:"instrument"`
	Book       BookConfig       `mapstructure:"book"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

type BookConfig struct {
	PInf     int64  `mapstructure:"pinf"`
	PSup     int64  `mapstructure:"psup"`
	TickSize int64  `mapstructure:"ticksize"`
	Phase    string `mapstructure:"phase"`
	// Schedule lists snapshot times, RFC3339.
	Schedule []string `mapstructure:"schedule"`
}

type FeedConfig struct {
	BuyFiles  []string `mapstructure:"buy_files"`
	SellFiles []string `mapstructure:"sell_files"`
	// PriceDecimals is the number of decimal places kept when turning
	// quoted prices into integer ticks.
	PriceDecimals int32 `mapstructure:"price_decimals"`
	// SizeScale is the lot size quantities are divided by.
	SizeScale int64  `mapstructure:"size_scale"`
	Location  string `mapstructure:"location"`
	Until     string `mapstructure:"until"`
}

type JournalConfig struct {
	Dir             string        `mapstructure:"dir"`
	SegmentSize     int64         `mapstructure:"segment_size"`
	SegmentDuration time.Duration `mapstructure:"segment_duration"`
	SyncEveryAppend bool          `mapstructure:"sync_every_append"`
}

type OutboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type CheckpointConfig struct {
	Dir      string        `mapstructure:"dir"`
	Interval time.Duration `mapstructure:"interval"`
}

type KafkaConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	FillsTopic        string        `mapstructure:"fills_topic"`
	OutboxTopic       string        `mapstructure:"outbox_topic"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	MaxRetries        uint32        `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instrument", "")
	v.SetDefault("book.pinf", 0)
	v.SetDefault("book.psup", 1_000_000)
	v.SetDefault("book.ticksize", 1)
	v.SetDefault("book.phase", "closed")
	v.SetDefault("book.schedule", []string{})

	v.SetDefault("feed.buy_files", []string{})
	v.SetDefault("feed.sell_files", []string{})
	v.SetDefault("feed.price_decimals", 2)
	v.SetDefault("feed.size_scale", 1)
	v.SetDefault("feed.location", "UTC")
	v.SetDefault("feed.until", "")

	v.SetDefault("journal.dir", "./data/journal")
	v.SetDefault("journal.segment_size", 64<<20)
	v.SetDefault("journal.segment_duration", time.Duration(0))
	v.SetDefault("journal.sync_every_append", false)

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.dir", "./data/outbox")

	v.SetDefault("checkpoint.dir", "./data/checkpoint")
	v.SetDefault("checkpoint.interval", time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.fills_topic", "lob.fills")
	v.SetDefault("kafka.outbox_topic", "lob.records")
	v.SetDefault("kafka.broadcast_interval", 250*time.Millisecond)
	v.SetDefault("kafka.max_retries", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("log.level", "info")
}

// Load reads the first existing file of paths (none is fine), then
// applies LOBSTER_* environment overrides, e.g. LOBSTER_BOOK_TICKSIZE.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		break
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Book.Params(); err != nil {
		return err
	}
	if _, err := c.Book.ScheduleTimes(); err != nil {
		return err
	}
	if _, err := c.Feed.Cutoff(); err != nil {
		return err
	}
	if c.Feed.PriceDecimals < 0 {
		return errors.Newf("feed.price_decimals must not be negative, got %d", c.Feed.PriceDecimals)
	}
	if c.Feed.SizeScale < 1 {
		return errors.Newf("feed.size_scale must be at least 1, got %d", c.Feed.SizeScale)
	}
	if _, err := time.LoadLocation(c.Feed.Location); err != nil {
		return errors.Wrapf(err, "feed.location %q", c.Feed.Location)
	}
	if c.Journal.Dir == "" {
		return errors.New("journal.dir is required")
	}
	if c.Outbox.Enabled && c.Outbox.Dir == "" {
		return errors.New("outbox.dir is required when the outbox is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

func (b BookConfig) Params() (orderbook.Params, error) {
	phase, err := orderbook.ParsePhase(b.Phase)
	if err != nil {
		return orderbook.Params{}, errors.Wrap(err, "book.phase")
	}
	p := orderbook.Params{PInf: b.PInf, PSup: b.PSup, TickSize: b.TickSize, Phase: phase}
	if err := p.Validate(); err != nil {
		return orderbook.Params{}, errors.Wrap(err, "book")
	}
	return p, nil
}

func (b BookConfig) ScheduleTimes() ([]time.Time, error) {
	out := make([]time.Time, 0, len(b.Schedule))
	for _, s := range b.Schedule {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, errors.Wrapf(err, "book.schedule entry %q", s)
		}
		out = append(out, t)
	}
	return out, nil
}

// Cutoff parses feed.until; the zero time means no cutoff.
func (f FeedConfig) Cutoff() (time.Time, error) {
	if f.Until == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, f.Until)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "feed.until %q", f.Until)
	}
	return t, nil
}
