package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"lobster/domain/orderbook"
	"lobster/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lobster.v1.BookQuery"

// Querier is the read side of a replay service.
type Querier interface {
	TopOfBook() service.TopOfBook
	Depth(side orderbook.Side, limit int) []orderbook.Level
	Snapshots() []orderbook.Snapshot
	Spreads(from, to time.Time) []orderbook.SpreadSample
	Status() service.Status
}

// BookQueryServer is implemented by Server. Requests and responses are
// google.protobuf.Struct documents.
type BookQueryServer interface {
	TopOfBook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Depth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Spreads(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server adapts a Querier to gRPC.
type Server struct {
	q Querier
}

func NewServer(q Querier) *Server {
	return &Server{q: q}
}

// Register exposes q on s.
func Register(s grpc.ServiceRegistrar, q Querier) {
	s.RegisterService(&ServiceDesc, NewServer(q))
}

// -------------------- Queries --------------------

func (s *Server) TopOfBook(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	top := s.q.TopOfBook()
	fields := map[string]any{"bid": nil, "ask": nil}
	if top.HasBid {
		fields["bid"] = levelValue(top.Bid)
	}
	if top.HasAsk {
		fields["ask"] = levelValue(top.Ask)
	}
	return structpb.NewStruct(fields)
}

func (s *Server) Depth(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	side, err := orderbook.ParseSide(req.GetFields()["side"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	limit := int(req.GetFields()["limit"].GetNumberValue())
	return structpb.NewStruct(map[string]any{
		"side":   side.String(),
		"levels": levelsValue(s.q.Depth(side, limit)),
	})
}

func (s *Server) Snapshots(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snaps := s.q.Snapshots()
	out := make([]any, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, map[string]any{
			"scheduled_time": formatTime(sn.ScheduledTime),
			"buy":            levelsValue(sn.Buy),
			"sell":           levelsValue(sn.Sell),
		})
	}
	return structpb.NewStruct(map[string]any{"snapshots": out})
}

func (s *Server) Spreads(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, err := parseTime(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := parseTime(req, "to")
	if err != nil {
		return nil, err
	}

	samples := s.q.Spreads(from, to)
	out := make([]any, 0, len(samples))
	for _, sp := range samples {
		out = append(out, map[string]any{
			"time":      formatTime(sp.Time),
			"bid_price": sp.BidPrice,
			"bid_size":  sp.BidSize,
			"ask_price": sp.AskPrice,
			"ask_size":  sp.AskSize,
			"spread":    sp.Spread(),
		})
	}
	return structpb.NewStruct(map[string]any{"spreads": out})
}

func (s *Server) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.q.Status()
	halted := ""
	if st.Halted != nil {
		halted = st.Halted.Error()
	}
	return structpb.NewStruct(map[string]any{
		"session":       st.Session,
		"instrument":    st.Instrument,
		"phase":         st.Phase.String(),
		"last_modified": formatTime(st.LastModified),
		"halted":        halted,
		"journal_seq":   st.JournalSeq,
		"buy_orders":    st.BuyOrders,
		"sell_orders":   st.SellOrders,
		"events":        st.Stats.Events,
		"fills":         st.Stats.Fills,
		"snapshots":     st.Stats.Snapshots,
		"spreads":       st.Stats.Spreads,
		"notices":       st.Stats.Notices,
	})
}

// -------------------- Converters --------------------

func levelValue(l orderbook.Level) map[string]any {
	return map[string]any{"price": l.Price, "size": l.Size}
}

func levelsValue(levels []orderbook.Level) []any {
	out := make([]any, 0, len(levels))
	for _, l := range levels {
		out = append(out, levelValue(l))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(req *structpb.Struct, field string) (time.Time, error) {
	raw := req.GetFields()[field].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return t, nil
}

// -------------------- Logging --------------------

// UnaryLogger logs every call with its duration and status code.
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}
