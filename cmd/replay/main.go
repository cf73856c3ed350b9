// Command replay rebuilds a book offline from B3 order files and prints
// the scheduled snapshots and the spread samples of a time window.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"lobster/domain/orderbook"
	"lobster/feed"
	"lobster/infra/logger"
	"lobster/service"
)

type options struct {
	instrument string
	buy, sell  []string
	pinf, psup int64
	tick       int64
	phase      string
	decimals   int32
	lot        int64
	location   string
	until      string
	schedule   []string
	from, to   string
	depth      int
	logLevel   string
}

func main() {
	var o options
	fs := pflag.NewFlagSet("replay", pflag.ExitOnError)
	fs.StringVarP(&o.instrument, "instrument", "i", "", "ticker to rebuild, e.g. PETR4")
	fs.StringSliceVar(&o.buy, "buy", nil, "buy-side order files (.gz or plain)")
	fs.StringSliceVar(&o.sell, "sell", nil, "sell-side order files (.gz or plain)")
	fs.Int64Var(&o.pinf, "pinf", 0, "lowest price tick")
	fs.Int64Var(&o.psup, "psup", 1_000_000, "exclusive upper price bound")
	fs.Int64Var(&o.tick, "ticksize", 1, "price tick size")
	fs.StringVar(&o.phase, "phase", "closed", "initial phase: closed, opening or open")
	fs.Int32Var(&o.decimals, "price-decimals", 2, "decimal places kept in prices")
	fs.Int64Var(&o.lot, "size-scale", 1, "lot size quantities are divided by")
	fs.StringVar(&o.location, "location", "America/Sao_Paulo", "time zone of the feed clock")
	fs.StringVar(&o.until, "until", "", "stop after this time (RFC3339)")
	fs.StringSliceVar(&o.schedule, "snapshot", nil, "snapshot times (RFC3339)")
	fs.StringVar(&o.from, "from", "", "first spread sample to print (RFC3339)")
	fs.StringVar(&o.to, "to", "", "last spread sample to print (RFC3339)")
	fs.IntVar(&o.depth, "depth", 5, "levels per side printed for each snapshot; 0 prints all")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	_ = fs.Parse(os.Args[1:])

	log := logger.New(o.logLevel)
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), o, log, os.Stdout); err != nil {
		log.Error("replay failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseTimes(vals ...string) ([]time.Time, error) {
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, errors.Wrapf(err, "time %q", v)
		}
		out[i] = t
	}
	return out, nil
}

func run(ctx context.Context, o options, log *zap.Logger, w io.Writer) error {
	if o.instrument == "" {
		return errors.New("--instrument is required")
	}
	phase, err := orderbook.ParsePhase(o.phase)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(o.location)
	if err != nil {
		return errors.Wrap(err, "location")
	}
	schedule, err := parseTimes(o.schedule...)
	if err != nil {
		return err
	}
	bounds, err := parseTimes(o.until, o.from, o.to)
	if err != nil {
		return err
	}

	svc, err := service.New(service.Options{
		Instrument: o.instrument,
		Params:     orderbook.Params{PInf: o.pinf, PSup: o.psup, TickSize: o.tick, Phase: phase},
		Schedule:   schedule,
	}, service.Deps{Logger: log})
	if err != nil {
		return err
	}

	evs, err := feed.Load(feed.Parser{
		Instrument:    o.instrument,
		PriceDecimals: o.decimals,
		SizeScale:     o.lot,
		Location:      loc,
	},
		append(append([]string(nil), o.buy...), o.sell...)...)
	if err != nil {
		return err
	}
	st, err := svc.Ingest(ctx, feed.Until(feed.NewSliceSource(evs), bounds[0]))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, sn := range svc.Snapshots() {
		fmt.Fprintf(tw, "snapshot\t%s\n", sn.ScheduledTime.Format(time.RFC3339Nano))
		printLevels(tw, "buy", sn.Buy, o.depth)
		printLevels(tw, "sell", sn.Sell, o.depth)
	}
	fmt.Fprintln(tw, "time\tbid\tbid size\task\task size\tspread")
	for _, sp := range svc.Spreads(bounds[1], bounds[2]) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			sp.Time.Format(time.RFC3339Nano), sp.BidPrice, sp.BidSize, sp.AskPrice, sp.AskSize, sp.Spread())
	}
	fmt.Fprintf(tw, "events %d\tfills %d\tsnapshots %d\tspreads %d\tnotices %d\n",
		st.Events, st.Fills, st.Snapshots, st.Spreads, st.Notices)
	return tw.Flush()
}

func printLevels(w io.Writer, side string, levels []orderbook.Level, depth int) {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	for _, l := range levels {
		fmt.Fprintf(w, "\t%s\t%d\t%d\n", side, l.Price, l.Size)
	}
}
