package quotecache

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"lobster/domain/orderbook"
)

// Cache keeps the latest top of book of each instrument in a Redis hash
// so dashboards can read it without going through the engine.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func New(opts Options) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.TTL)
}

func NewWithClient(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func Key(instrument string) string {
	return "lob:" + instrument + ":quote"
}

func fields(s orderbook.SpreadSample) map[string]any {
	return map[string]any{
		"time":      s.Time.UTC().Format(time.RFC3339Nano),
		"bid_price": strconv.FormatInt(s.BidPrice, 10),
		"bid_size":  strconv.FormatInt(s.BidSize, 10),
		"ask_price": strconv.FormatInt(s.AskPrice, 10),
		"ask_size":  strconv.FormatInt(s.AskSize, 10),
		"spread":    strconv.FormatInt(s.Spread(), 10),
	}
}

// Put overwrites the quote of instrument with s.
func (c *Cache) Put(ctx context.Context, instrument string, s orderbook.SpreadSample) error {
	key := Key(instrument)
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields(s))
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	return errors.Wrapf(err, "quotecache: put %s", key)
}

// Get reads the cached quote back; ok is false when none is stored.
func (c *Cache) Get(ctx context.Context, instrument string) (s orderbook.SpreadSample, ok bool, err error) {
	m, err := c.client.HGetAll(ctx, Key(instrument)).Result()
	if err != nil {
		return s, false, errors.Wrap(err, "quotecache: get")
	}
	if len(m) == 0 {
		return s, false, nil
	}
	if s.Time, err = time.Parse(time.RFC3339Nano, m["time"]); err != nil {
		return s, false, errors.Wrap(err, "quotecache: time")
	}
	for name, dst := range map[string]*int64{
		"bid_price": &s.BidPrice,
		"bid_size":  &s.BidSize,
		"ask_price": &s.AskPrice,
		"ask_size":  &s.AskSize,
	} {
		if *dst, err = strconv.ParseInt(m[name], 10, 64); err != nil {
			return s, false, errors.Wrapf(err, "quotecache: %s", name)
		}
	}
	return s, true, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
