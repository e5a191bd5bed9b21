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

package escrow

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/blinklabs-io/veescrow/txn"
	"github.com/blinklabs-io/veescrow/units"
)

// maxCheckpointWeeks bounds the weekly fast-forward. It exceeds the longest
// possible lock, so every scheduled slope change is reached
const maxCheckpointWeeks = 255

// decay returns max(0, bias - slope*dt)
func decay(bias *uint256.Int, slope *uint256.Int, dt uint64) *uint256.Int {
	drop, overflow := new(uint256.Int).MulOverflow(slope, uint256.NewInt(dt))
	if overflow || !drop.Lt(bias) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(bias, drop)
}

// subFloor returns max(0, a - b)
func subFloor(a *uint256.Int, b *uint256.Int) *uint256.Int {
	if !b.Lt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// userPoint returns the line contributed by lock at now. Expired and empty
// locks contribute nothing
func (l *Ledger) userPoint(lock Lock, now uint64) Point {
	p := newPoint(now)
	if lock.End > now && !lock.IsZero() {
		p.Slope = new(uint256.Int).Div(lock.Amount, uint256.NewInt(l.maxTime))
		p.Bias = new(uint256.Int).Mul(p.Slope, uint256.NewInt(lock.End-now))
	}
	return p
}

// checkpoint records the move of account from oldLock to newLock at now and
// brings the global history up to now. A zero account only fast-forwards the
// global history. Caller must hold the write lock
func (l *Ledger) checkpoint(
	ctx context.Context,
	account common.Address,
	oldLock Lock,
	newLock Lock,
	now uint64,
) {
	var uOld, uNew Point
	var oldReduction, newReduction *uint256.Int
	isUser := account != (common.Address{})
	if isUser {
		uOld = l.userPoint(oldLock, now)
		uNew = l.userPoint(newLock, now)
		oldReduction = l.slopeChange(oldLock.End).Clone()
		if newLock.End != 0 {
			if newLock.End == oldLock.End {
				newReduction = oldReduction.Clone()
			} else {
				newReduction = l.slopeChange(newLock.End).Clone()
			}
		}
	}

	lastPoint := newPoint(now)
	if len(l.pointHistory) > 1 {
		lastPoint = l.pointHistory[len(l.pointHistory)-1].clone()
	}
	lastCheckpoint := lastPoint.Ts
	prevLen := len(l.pointHistory)

	// Walk the global line forward one week boundary at a time, applying the
	// slope reductions scheduled at each boundary
	ti := units.RoundDown(lastCheckpoint, l.week)
	for range maxCheckpointWeeks {
		ti += l.week
		var reduction *uint256.Int
		if ti > now {
			ti = now
		} else {
			reduction = l.slopeChange(ti)
		}
		lastPoint.Bias = decay(lastPoint.Bias, lastPoint.Slope, ti-lastCheckpoint)
		if reduction != nil {
			lastPoint.Slope = subFloor(lastPoint.Slope, reduction)
		}
		lastCheckpoint = ti
		lastPoint.Ts = ti
		if ti == now {
			break
		}
		l.pointHistory = append(l.pointHistory, lastPoint.clone())
	}
	// Past the longest lock no weight remains
	if lastPoint.Ts < now {
		lastPoint = newPoint(now)
	}

	if isUser {
		lastPoint.Slope = subFloor(
			new(uint256.Int).Add(lastPoint.Slope, uNew.Slope),
			uOld.Slope,
		)
		lastPoint.Bias = subFloor(
			new(uint256.Int).Add(lastPoint.Bias, uNew.Bias),
			uOld.Bias,
		)
	}
	l.pointHistory = append(l.pointHistory, lastPoint)
	txn.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.pointHistory = l.pointHistory[:prevLen]
	})

	if !isUser {
		return
	}
	// Move the scheduled slope reductions. The old end no longer expires
	// uOld; the new end expires uNew
	if oldLock.End > now {
		oldReduction = subFloor(oldReduction, uOld.Slope)
		if newLock.End == oldLock.End {
			oldReduction.Add(oldReduction, uNew.Slope)
		}
		l.setSlopeChange(ctx, oldLock.End, oldReduction)
	}
	if newLock.End > now && newLock.End > oldLock.End {
		newReduction.Add(newReduction, uNew.Slope)
		l.setSlopeChange(ctx, newLock.End, newReduction)
	}

	hist := l.userPointHistory[account]
	hadHistory := hist != nil
	if !hadHistory {
		hist = []Point{newPoint(0)}
	}
	prevUserLen := len(hist)
	l.userPointHistory[account] = append(hist, uNew)
	txn.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !hadHistory {
			delete(l.userPointHistory, account)
			return
		}
		l.userPointHistory[account] = l.userPointHistory[account][:prevUserLen]
	})
}

func (l *Ledger) setSlopeChange(ctx context.Context, t uint64, v *uint256.Int) {
	prev, hadPrev := l.slopeChanges[t]
	if v.IsZero() {
		delete(l.slopeChanges, t)
	} else {
		l.slopeChanges[t] = v
	}
	txn.Record(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if hadPrev {
			l.slopeChanges[t] = prev
		} else {
			delete(l.slopeChanges, t)
		}
	})
}

// supplyAt replays the global line from point to t. Caller must hold a lock
func (l *Ledger) supplyAt(point Point, t uint64) *uint256.Int {
	last := point.clone()
	ti := units.RoundDown(last.Ts, l.week)
	for range maxCheckpointWeeks {
		ti += l.week
		var reduction *uint256.Int
		if ti > t {
			ti = t
		} else {
			reduction = l.slopeChange(ti)
		}
		last.Bias = decay(last.Bias, last.Slope, ti-last.Ts)
		if ti == t {
			break
		}
		last.Slope = subFloor(last.Slope, reduction)
		last.Ts = ti
	}
	return last.Bias
}
