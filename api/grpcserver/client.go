package grpcserver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"lobster/domain/orderbook"
	"lobster/service"
)

// Client calls a remote BookQuery service and decodes its documents.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, errors.Wrap(err, "grpc client: request")
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TopOfBook(ctx context.Context) (service.TopOfBook, error) {
	out, err := c.call(ctx, "TopOfBook", nil)
	if err != nil {
		return service.TopOfBook{}, err
	}
	var top service.TopOfBook
	if v := out.GetFields()["bid"].GetStructValue(); v != nil {
		top.Bid, top.HasBid = toLevel(v), true
	}
	if v := out.GetFields()["ask"].GetStructValue(); v != nil {
		top.Ask, top.HasAsk = toLevel(v), true
	}
	return top, nil
}

func (c *Client) Depth(ctx context.Context, side orderbook.Side, limit int) ([]orderbook.Level, error) {
	out, err := c.call(ctx, "Depth", map[string]any{"side": side.String(), "limit": limit})
	if err != nil {
		return nil, err
	}
	return toLevels(out.GetFields()["levels"]), nil
}

func (c *Client) Snapshots(ctx context.Context) ([]orderbook.Snapshot, error) {
	out, err := c.call(ctx, "Snapshots", nil)
	if err != nil {
		return nil, err
	}
	var snaps []orderbook.Snapshot
	for _, v := range out.GetFields()["snapshots"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		at, err := time.Parse(time.RFC3339Nano, f["scheduled_time"].GetStringValue())
		if err != nil {
			return nil, errors.Wrap(err, "grpc client: scheduled_time")
		}
		snaps = append(snaps, orderbook.Snapshot{
			ScheduledTime: at,
			Buy:           toLevels(f["buy"]),
			Sell:          toLevels(f["sell"]),
		})
	}
	return snaps, nil
}

// Spreads fetches samples in [from, to]; zero bounds are open.
func (c *Client) Spreads(ctx context.Context, from, to time.Time) ([]orderbook.SpreadSample, error) {
	out, err := c.call(ctx, "Spreads", map[string]any{"from": formatTime(from), "to": formatTime(to)})
	if err != nil {
		return nil, err
	}
	var samples []orderbook.SpreadSample
	for _, v := range out.GetFields()["spreads"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		at, err := time.Parse(time.RFC3339Nano, f["time"].GetStringValue())
		if err != nil {
			return nil, errors.Wrap(err, "grpc client: time")
		}
		samples = append(samples, orderbook.SpreadSample{
			Time:     at,
			BidPrice: num(f["bid_price"]),
			BidSize:  num(f["bid_size"]),
			AskPrice: num(f["ask_price"]),
			AskSize:  num(f["ask_size"]),
		})
	}
	return samples, nil
}

// Status returns the raw status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out, err := c.call(ctx, "Status", nil)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func num(v *structpb.Value) int64 { return int64(v.GetNumberValue()) }

func toLevel(s *structpb.Struct) orderbook.Level {
	return orderbook.Level{Price: num(s.GetFields()["price"]), Size: num(s.GetFields()["size"])}
}

func toLevels(v *structpb.Value) []orderbook.Level {
	vals := v.GetListValue().GetValues()
	out := make([]orderbook.Level, 0, len(vals))
	for _, lv := range vals {
		out = append(out, toLevel(lv.GetStructValue()))
	}
	return out
}
