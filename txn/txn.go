// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package txn provides undo-journal transactions for in-memory stores.
//
// A store applies each mutation immediately and registers the inverse with
// Record. When the surrounding transaction rolls back, the inverses run in
// reverse order; when it commits they are discarded and any deferred
// emissions registered with OnCommit are run. Stores invoked with a context
// that carries no transaction behave as if each call were its own committed
// transaction.
package txn

import (
	"context"
	"sync"
)

type ctxKey string

const txnContextKey ctxKey = "veescrow.txn"

// Txn journals undo actions and commit hooks for one atomic operation
type Txn struct {
	parent   *Txn
	undo     []func()
	onCommit []func()
	lock     sync.Mutex
	finished bool
}

// Begin starts a transaction. If ctx already carries one, the new
// transaction is nested: its Commit hands the journal to the parent instead
// of finalizing it
func Begin(ctx context.Context) (context.Context, *Txn) {
	t := &Txn{parent: FromContext(ctx)}
	return context.WithValue(ctx, txnContextKey, t), t
}

// FromContext returns the transaction carried by ctx, if any
func FromContext(ctx context.Context) *Txn {
	if ctx == nil {
		return nil
	}
	t, ok := ctx.Value(txnContextKey).(*Txn)
	if !ok {
		return nil
	}
	return t
}

// Record registers an undo action with the transaction in ctx. Without a
// transaction the mutation is already final and undo is dropped
func Record(ctx context.Context, undo func()) {
	if t := FromContext(ctx); t != nil {
		t.addUndo(undo)
	}
}

// OnCommit defers fn until the transaction in ctx commits. Without a
// transaction fn runs immediately
func OnCommit(ctx context.Context, fn func()) {
	if t := FromContext(ctx); t != nil {
		t.addOnCommit(fn)
		return
	}
	fn()
}

// Do runs fn inside a new transaction, committing on success and rolling
// back on error
func Do(ctx context.Context, fn func(context.Context) error) error {
	ctx, t := Begin(ctx)
	defer t.Release()
	if err := fn(ctx); err != nil {
		t.Rollback()
		return err
	}
	t.Commit()
	return nil
}

func (t *Txn) addUndo(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return
	}
	t.undo = append(t.undo, fn)
}

func (t *Txn) addOnCommit(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return
	}
	t.onCommit = append(t.onCommit, fn)
}

// Commit finalizes the transaction. A nested transaction passes its journal
// up so the outer transaction can still undo it
func (t *Txn) Commit() {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		return
	}
	t.finished = true
	undo := t.undo
	onCommit := t.onCommit
	t.undo = nil
	t.onCommit = nil
	t.lock.Unlock()

	if t.parent != nil {
		for _, fn := range undo {
			t.parent.addUndo(fn)
		}
		for _, fn := range onCommit {
			t.parent.addOnCommit(fn)
		}
		return
	}
	for _, fn := range onCommit {
		fn()
	}
}

// Rollback reverts every recorded mutation, newest first, and drops the
// commit hooks
func (t *Txn) Rollback() {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		return
	}
	t.finished = true
	undo := t.undo
	t.undo = nil
	t.onCommit = nil
	t.lock.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Release rolls back an unfinished transaction. It is a no-op after Commit,
// which makes it suitable for defer statements
func (t *Txn) Release() {
	t.Rollback()
}

// Finished reports whether the transaction has been committed or rolled back
func (t *Txn) Finished() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.finished
}
