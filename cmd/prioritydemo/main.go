// Command prioritydemo simulates a handful of concurrent HTTP/2-style
// streams competing for a shared byte budget, scheduled by the
// weighted-fair-queueing distributor in
// github.com/yourusername/shockwave/pkg/shockwave/http2/priority.
//
// Every stream is a producer goroutine; all of them hand their work
// to a single executor goroutine that owns the distributor, since the
// distributor itself is not safe for concurrent use.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urfave/cli"

	"github.com/yourusername/shockwave/pkg/shockwave/http2/priority"
)

// VERSION is injected by build flags.
var VERSION = "SELFBUILD"

// produced is one producer's report of newly queued bytes for its
// stream, applied to the distributor by the executor goroutine.
type produced struct {
	streamID uint32
	total    int64
}

// logWriter implements priority.Writer, recording bytes handed to each
// stream instead of performing real network I/O.
type logWriter struct {
	sent map[uint32]int64
}

func (w *logWriter) Write(node *priority.Node, n int64) {
	w.sent[node.StreamID()] += n
}

func main() {
	app := cli.NewApp()
	app.Name = "prioritydemo"
	app.Usage = "simulate WFQ byte distribution across HTTP/2-style priority streams"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "streams",
			Value: 4,
			Usage: "number of simulated streams",
		},
		cli.IntFlag{
			Name:  "quantum",
			Value: 1024,
			Usage: "distributor allocation quantum (bytes)",
		},
		cli.IntFlag{
			Name:  "retention",
			Value: 5,
			Usage: "max state-only (priority-only) nodes retained",
		},
		cli.Int64Flag{
			Name:  "budget-per-tick",
			Value: 4096,
			Usage: "bytes distributed per scheduling tick",
		},
		cli.IntFlag{
			Name:  "ticks",
			Value: 50,
			Usage: "number of scheduling ticks to run",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	numStreams := c.Int("streams")
	if numStreams < 1 {
		return fmt.Errorf("prioritydemo: --streams must be >= 1")
	}
	budgetPerTick := c.Int64("budget-per-tick")
	ticks := c.Int("ticks")

	config := priority.Config{
		AllocationQuantum: int32(c.Int("quantum")),
		MaxStateOnlySize:  c.Int("retention"),
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("prioritydemo: invalid config: %w", err)
	}

	distributor, err := priority.NewDistributor(config)
	if err != nil {
		return fmt.Errorf("prioritydemo: %w", err)
	}

	streamIDs := make([]uint32, numStreams)
	for i := range streamIDs {
		streamIDs[i] = uint32(1 + 2*i) // odd client-style stream ids
	}

	// Give each stream a weight skewed by its index, so the demo's
	// output visibly favors earlier (heavier) streams.
	weights := make(map[uint32]int32, numStreams)
	for i, id := range streamIDs {
		weights[id] = priority.DefaultWeight * int32(numStreams-i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	events := make(chan produced, numStreams*4)
	done := make(chan struct{})

	// Executor goroutine: the only goroutine that ever touches
	// distributor. Applies queued production events, then ticks the
	// scheduler forward, until the context is canceled.
	writer := &logWriter{sent: make(map[uint32]int64)}
	group.Go(func() error {
		defer close(done)

		for _, id := range streamIDs {
			distributor.OnStreamAdded(id, nil, false)
			if err := distributor.UpdateDependencyTree(id, 0, weights[id], false); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		remaining := ticks
		for remaining > 0 {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev := <-events:
				distributor.UpdateStreamableBytes(ev.streamID, ev.total, ev.total > 0, 1<<30-1)
			case <-ticker.C:
				distributor.Distribute(budgetPerTick, writer)
				remaining--
			}
		}
		return nil
	})

	// One producer goroutine per stream: generates a growing backlog
	// of bytes, simulating an application that keeps writing.
	for _, id := range streamIDs {
		id := id
		group.Go(func() error {
			var total int64
			src := rand.New(rand.NewSource(int64(id)))
			for i := 0; i < ticks; i++ {
				total += int64(src.Intn(512))
				select {
				case events <- produced{streamID: id, total: total}:
				case <-gctx.Done():
					return gctx.Err()
				case <-done:
					return nil
				}
				time.Sleep(time.Millisecond / 2)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}

	printSummary(streamIDs, writer.sent)
	return nil
}

func printSummary(streamIDs []uint32, sent map[uint32]int64) {
	sort.Slice(streamIDs, func(i, j int) bool { return streamIDs[i] < streamIDs[j] })
	for _, id := range streamIDs {
		fmt.Printf("stream %d: %d bytes distributed\n", id, sent[id])
	}
}
