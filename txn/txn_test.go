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

package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow/txn"
)

// counter is a toy store that journals its mutations
type counter struct {
	value int
}

func (c *counter) add(ctx context.Context, n int) {
	c.value += n
	txn.Record(ctx, func() { c.value -= n })
}

func TestNoTxnIsFinal(t *testing.T) {
	c := &counter{}
	c.add(context.Background(), 5)
	assert.Equal(t, 5, c.value)

	ran := false
	txn.OnCommit(context.Background(), func() { ran = true })
	assert.True(t, ran, "commit hook should run immediately without a txn")
}

func TestRollbackReverses(t *testing.T) {
	c := &counter{}
	ctx, tx := txn.Begin(context.Background())
	c.add(ctx, 5)
	c.add(ctx, 7)
	emitted := false
	txn.OnCommit(ctx, func() { emitted = true })
	assert.Equal(t, 12, c.value)
	tx.Rollback()
	assert.Equal(t, 0, c.value)
	assert.False(t, emitted)
	assert.True(t, tx.Finished())
	// Second rollback is a no-op
	tx.Rollback()
	assert.Equal(t, 0, c.value)
}

func TestCommitRunsHooks(t *testing.T) {
	c := &counter{}
	ctx, tx := txn.Begin(context.Background())
	c.add(ctx, 3)
	var order []int
	txn.OnCommit(ctx, func() { order = append(order, 1) })
	txn.OnCommit(ctx, func() { order = append(order, 2) })
	tx.Commit()
	tx.Release()
	assert.Equal(t, 3, c.value)
	assert.Equal(t, []int{1, 2}, order)
}

func TestNestedCommitDefersToParent(t *testing.T) {
	c := &counter{}
	outerCtx, outer := txn.Begin(context.Background())
	c.add(outerCtx, 1)
	innerCtx, inner := txn.Begin(outerCtx)
	c.add(innerCtx, 10)
	emitted := false
	txn.OnCommit(innerCtx, func() { emitted = true })
	inner.Commit()
	assert.False(t, emitted, "inner commit must wait for the outer txn")
	outer.Rollback()
	assert.Equal(t, 0, c.value)
	assert.False(t, emitted)
}

func TestNestedRollbackKeepsParent(t *testing.T) {
	c := &counter{}
	outerCtx, outer := txn.Begin(context.Background())
	c.add(outerCtx, 1)
	innerCtx, inner := txn.Begin(outerCtx)
	c.add(innerCtx, 10)
	inner.Rollback()
	assert.Equal(t, 1, c.value)
	outer.Commit()
	assert.Equal(t, 1, c.value)
}

func TestDo(t *testing.T) {
	c := &counter{}
	errBoom := errors.New("boom")
	err := txn.Do(context.Background(), func(ctx context.Context) error {
		c.add(ctx, 4)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, c.value)

	err = txn.Do(context.Background(), func(ctx context.Context) error {
		c.add(ctx, 4)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, c.value)
}
