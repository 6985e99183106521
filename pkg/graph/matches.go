package graph

import (
	"context"
	"errors"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/vm"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// ErrNotReady is returned by Row when called before Next has ever been
// called, or after Next has returned false.
var ErrNotReady = errors.New("graph: Matches.Row called without a successful Next")

// Matches iterates the rows a Run call produces. A query with a RETURN
// clause yields one row per match found; a query without one (a bare
// CREATE/SET/DELETE statement) has already run to completion by the
// time Run returns it, and always reports Next as false.
type Matches struct {
	vm      *vm.VirtualMachine
	columns []string
	row     []value.Property
	ready   bool
	done    bool
	err     error
}

// Columns returns the RETURN column names, in order. Valid even before
// the first call to Next.
func (m *Matches) Columns() []string { return m.columns }

// Next advances to the next match, applying any update steps the plan
// carries along the way. It returns false once the program is
// exhausted or ctx is cancelled; check ctx.Err() to distinguish the two.
func (m *Matches) Next(ctx context.Context) bool {
	if m.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		m.done = true
		m.ready = false
		return false
	}

	status, err := m.vm.Run()
	if err != nil {
		m.err = err
	}
	if err != nil || status == vm.StatusHalt {
		m.done = true
		m.ready = false
		m.vm.Close()
		return false
	}

	row, err := m.vm.Columns()
	if err != nil {
		m.err = err
		m.done = true
		m.ready = false
		m.vm.Close()
		return false
	}
	m.row = row
	m.ready = true
	return true
}

// Err returns the error (if any) that caused Next to return false. A nil
// Err after Next returns false means the program ran to completion.
func (m *Matches) Err() error { return m.err }

// Row returns the current row's column values, in the order Columns
// reports. Returns ErrNotReady if called without a preceding successful
// Next.
func (m *Matches) Row() ([]value.Property, error) {
	if !m.ready {
		return nil, ErrNotReady
	}
	return m.row, nil
}

// Close releases any iterators the underlying virtual machine still has
// open. Safe to call after the Matches is already exhausted; required
// before abandoning one mid-iteration to avoid leaking store iterators.
func (m *Matches) Close() {
	m.vm.Close()
}

// Drain runs the Matches to completion, discarding any rows. Useful for
// write-only statements where the caller only cares that every match
// was processed (and its update steps applied), not the RETURN values.
func (m *Matches) Drain(ctx context.Context) error {
	for m.Next(ctx) {
	}
	if err := m.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
