package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/compile"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/parser"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/plan"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/vm"
	"github.com/dyedgreen/cqlite-sub000/pkg/store"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// TxnID uniquely identifies one Txn for logging and tracing.
type TxnID = uuid.UUID

func newTxnID() TxnID {
	return uuid.New()
}

// Txn is a single transaction against a Graph: one or more Run calls,
// followed by Commit or Discard.
type Txn struct {
	graph    *Graph
	store    *store.Txn
	id       TxnID
	readOnly bool
}

// ID returns the transaction's unique identifier.
func (t *Txn) ID() TxnID { return t.id }

// IsReadOnly reports whether the transaction rejects writes.
func (t *Txn) IsReadOnly() bool { return t.readOnly }

// Commit applies the transaction's writes durably. Read-only
// transactions have nothing to flush and always succeed.
func (t *Txn) Commit() error {
	if t.readOnly {
		t.store.Discard()
		return nil
	}
	return t.store.Commit()
}

// Discard abandons the transaction; none of its writes (if any) take
// effect. Safe to call on a transaction already committed.
func (t *Txn) Discard() {
	t.store.Discard()
}

// Run parses, plans, compiles (or fetches a cached compilation of) and
// begins executing query, bound against params. The returned Matches
// yields one row per RETURN match. A query with no RETURN clause has no
// rows to yield, so Run drives it to completion itself before
// returning, applying every match's update steps.
func (t *Txn) Run(ctx context.Context, query string, params map[string]value.Property) (m *Matches, err error) {
	start := time.Now()
	ctx, span := t.graph.tracer.Start(ctx, "graph.Run", trace.WithAttributes(
		attribute.String("cqlite.query", query),
	))
	defer func() {
		dur := clockSince(start).Seconds()
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		t.graph.queryCounter.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
		t.graph.queryDuration.Record(ctx, dur, metric.WithAttributes(attrOutcome(outcome)))
		span.End()
	}()

	if params == nil {
		params = map[string]value.Property{}
	}

	program, err := t.compile(query, params)
	if err != nil {
		return nil, err
	}

	machine := vm.New(t.store, program, params).WithInstrumentation(ctx, t.graph.instrCounter)
	m := &Matches{vm: machine, columns: machine.ColumnNames()}
	if len(m.columns) == 0 {
		if err := m.Drain(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// compile resolves query to a vm.Program, consulting the Graph's cache
// first when one is configured.
func (t *Txn) compile(query string, params map[string]value.Property) (*vm.Program, error) {
	var key uint64
	if t.graph.cache != nil {
		key = t.graph.cache.Key(query, params)
		if cached, ok := t.graph.cache.Get(key); ok {
			return cached.(*vm.Program), nil
		}
	}

	ast, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(ast)
	if err != nil {
		return nil, err
	}
	plan.Optimize(p)
	program, err := compile.Compile(p)
	if err != nil {
		return nil, err
	}

	if t.graph.cache != nil {
		t.graph.cache.Put(key, program)
	}
	return program, nil
}
