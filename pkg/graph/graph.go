// Package graph is the embeddable public API: open a Graph, start
// transactions against it, and run queries that return Matches rows. It
// wires together pkg/store (storage), pkg/query/* (parse, plan, compile,
// vm) and pkg/cache (compiled-program reuse) behind a small surface, and
// instruments query execution with OpenTelemetry spans and metrics.
package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyedgreen/cqlite-sub000/pkg/cache"
	"github.com/dyedgreen/cqlite-sub000/pkg/store"
)

const instrumentationName = "github.com/dyedgreen/cqlite-sub000/pkg/graph"

// Graph is an open graph database. A Graph is safe for concurrent use:
// the underlying store serializes write transactions and gives read
// transactions a consistent snapshot.
type Graph struct {
	store *store.Store
	cache *cache.QueryCache

	tracer trace.Tracer
	meter  metric.Meter

	txnCounter    metric.Int64Counter
	queryCounter  metric.Int64Counter
	queryDuration metric.Float64Histogram
	instrCounter  metric.Int64Counter
}

// Open opens or creates a Graph according to opts.
func Open(opts Options) (*Graph, error) {
	storeOpts, err := opts.storeOptions()
	if err != nil {
		return nil, fmt.Errorf("graph: derive encryption key: %w", err)
	}
	s, err := store.OpenWithOptions(storeOpts)
	if err != nil {
		return nil, err
	}

	g := &Graph{store: s}

	cacheSize := opts.QueryCacheSize
	if cacheSize == 0 {
		cacheSize = 1000
	}
	if cacheSize > 0 {
		g.cache = cache.NewQueryCache(cacheSize, opts.QueryCacheTTL)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	g.tracer = tp.Tracer(instrumentationName)
	g.meter = mp.Meter(instrumentationName)

	if err := g.initInstruments(); err != nil {
		s.Close()
		return nil, fmt.Errorf("graph: init instruments: %w", err)
	}

	return g, nil
}

// OpenAnon opens an anonymous, in-memory Graph - a convenience for tests
// and short-lived embeds, equivalent to Open(Options{InMemory: true}).
func OpenAnon() (*Graph, error) {
	return Open(Options{InMemory: true})
}

func (g *Graph) initInstruments() error {
	var err error
	g.txnCounter, err = g.meter.Int64Counter(
		"cqlite.graph.transactions",
		metric.WithDescription("Number of transactions begun, by mode."),
	)
	if err != nil {
		return err
	}
	g.queryCounter, err = g.meter.Int64Counter(
		"cqlite.graph.queries",
		metric.WithDescription("Number of queries run, by outcome."),
	)
	if err != nil {
		return err
	}
	g.queryDuration, err = g.meter.Float64Histogram(
		"cqlite.graph.query.duration",
		metric.WithDescription("Wall time spent compiling and running a query, in seconds."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	g.instrCounter, err = g.meter.Int64Counter(
		"cqlite.vm.instructions",
		metric.WithDescription("Number of bytecode instructions dispatched by the virtual machine."),
	)
	return err
}

// Close releases the Graph's resources. Any open Txns become invalid.
func (g *Graph) Close() error {
	return g.store.Close()
}

// Begin starts a read-write transaction.
func (g *Graph) Begin(ctx context.Context) *Txn {
	g.txnCounter.Add(ctx, 1, metric.WithAttributes(attrMode("write")))
	return &Txn{
		graph: g,
		store: g.store.BeginWrite(),
		id:    newTxnID(),
	}
}

// BeginRead starts a read-only transaction against the Graph's current
// snapshot.
func (g *Graph) BeginRead(ctx context.Context) *Txn {
	g.txnCounter.Add(ctx, 1, metric.WithAttributes(attrMode("read")))
	return &Txn{
		graph:    g,
		store:    g.store.BeginRead(),
		id:       newTxnID(),
		readOnly: true,
	}
}

// clockSince is a thin indirection over time.Since so the one place that
// reads the wall clock for metrics is easy to spot.
func clockSince(start time.Time) time.Duration { return time.Since(start) }
