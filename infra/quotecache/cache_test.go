package quotecache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobster/domain/orderbook"
)

// memHook answers hash commands in memory so no server is dialled.
type memHook struct {
	hashes map[string]map[string]string
	ttl    map[string]string
}

func newMemHook() *memHook {
	return &memHook{hashes: map[string]map[string]string{}, ttl: map[string]string{}}
}

func (h *memHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *memHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.exec(cmd)
		return nil
	}
}

func (h *memHook) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.exec(cmd)
		}
		return nil
	}
}

func (h *memHook) exec(cmd redis.Cmder) {
	args := cmd.Args()
	switch cmd.Name() {
	case "hset":
		key := fmt.Sprint(args[1])
		m := h.hashes[key]
		if m == nil {
			m = map[string]string{}
			h.hashes[key] = m
		}
		for i := 2; i+1 < len(args); i += 2 {
			m[fmt.Sprint(args[i])] = fmt.Sprint(args[i+1])
		}
		cmd.(*redis.IntCmd).SetVal(int64((len(args) - 2) / 2))
	case "expire":
		h.ttl[fmt.Sprint(args[1])] = fmt.Sprint(args[2])
		cmd.(*redis.BoolCmd).SetVal(true)
	case "hgetall":
		out := map[string]string{}
		for k, v := range h.hashes[fmt.Sprint(args[1])] {
			out[k] = v
		}
		cmd.(*redis.MapStringStringCmd).SetVal(out)
	}
}

func newTestCache(ttl time.Duration) (*Cache, *memHook) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	hook := newMemHook()
	client.AddHook(hook)
	return NewWithClient(client, ttl), hook
}

func TestCache_PutThenGet(t *testing.T) {
	c, hook := newTestCache(time.Hour)
	defer c.Close()
	ctx := context.Background()
	s := orderbook.SpreadSample{
		Time:     time.Date(2019, 6, 28, 10, 0, 0, 5, time.UTC),
		BidPrice: 2675, BidSize: 300, AskPrice: 2677, AskSize: 100,
	}

	require.NoError(t, c.Put(ctx, "PETR4", s))
	assert.Equal(t, "2", hook.hashes["lob:PETR4:quote"]["spread"])
	assert.Equal(t, "3600", hook.ttl["lob:PETR4:quote"])

	got, ok, err := c.Get(ctx, "PETR4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(0)
	defer c.Close()
	_, ok, err := c.Get(context.Background(), "VALE3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_NoTTLSkipsExpire(t *testing.T) {
	c, hook := newTestCache(0)
	defer c.Close()
	require.NoError(t, c.Put(context.Background(), "PETR4", orderbook.SpreadSample{Time: time.Unix(0, 0)}))
	assert.Empty(t, hook.ttl)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lob:BBDC4:quote", Key("BBDC4"))
}
