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

package event_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/veescrow/event"
	"github.com/blinklabs-io/veescrow/internal/test/testutil"
)

var testAccount = common.HexToAddress("0x2000000000000000000000000000000000000002")

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	return testutil.RequireReceive(t, ch, testutil.DefaultTimeout, "event")
}

func TestEventBusDeliversTypedData(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(event.EscrowWithdrawEventType)
	eb.Publish(
		event.EscrowWithdrawEventType,
		event.NewEvent(event.EscrowWithdrawEventType, event.EscrowWithdrawEvent{
			Account: testAccount,
			Value:   uint256.NewInt(15),
		}),
	)
	evt := receive(t, ch)
	assert.Equal(t, event.EscrowWithdrawEventType, evt.Type)
	assert.False(t, evt.Timestamp.IsZero())
	data, ok := evt.Data.(event.EscrowWithdrawEvent)
	require.True(t, ok, "unexpected event data type %T", evt.Data)
	assert.Equal(t, testAccount, data.Account)
	assert.Equal(t, uint256.NewInt(15), data.Value)
}

func TestEventBusFanOut(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch1 := eb.Subscribe(event.EscrowSupplyEventType)
	_, ch2 := eb.Subscribe(event.EscrowSupplyEventType)
	_, other := eb.Subscribe(event.EscrowShutdownEventType)
	eb.Publish(
		event.EscrowSupplyEventType,
		event.NewEvent(event.EscrowSupplyEventType, event.EscrowSupplyEvent{
			PrevSupply: uint256.NewInt(0),
			Supply:     uint256.NewInt(7),
		}),
	)
	for _, ch := range []<-chan event.Event{ch1, ch2} {
		data, ok := receive(t, ch).Data.(event.EscrowSupplyEvent)
		require.True(t, ok)
		assert.Equal(t, uint256.NewInt(7), data.Supply)
	}
	testutil.RequireNoReceive(t, other, 50*time.Millisecond, "subscriber of another type")
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, ch := eb.Subscribe(event.EscrowDelegateEventType)
	eb.Unsubscribe(event.EscrowDelegateEventType, subId)
	eb.Publish(
		event.EscrowDelegateEventType,
		event.NewEvent(event.EscrowDelegateEventType, event.EscrowDelegateEvent{}),
	)
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "received event after Unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}
}

func TestEventBusStopAndReuse(t *testing.T) {
	typ := event.EscrowShutdownEventType
	eb := event.NewEventBus(nil, nil)
	_, ch := eb.Subscribe(typ)
	var handled atomic.Int32
	eb.SubscribeFunc(typ, func(event.Event) {
		handled.Add(1)
	})

	eb.Publish(typ, event.NewEvent(typ, event.EscrowShutdownEvent{Timestamp: 1}))
	require.Eventually(t, func() bool {
		return handled.Load() == 1
	}, time.Second, 5*time.Millisecond)

	eb.Stop()
	for range ch {
	}

	// Handlers registered before Stop no longer run
	eb.Publish(typ, event.NewEvent(typ, event.EscrowShutdownEvent{Timestamp: 2}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())

	// The bus accepts new subscribers after Stop
	_, ch2 := eb.Subscribe(typ)
	eb.Publish(typ, event.NewEvent(typ, event.EscrowShutdownEvent{Timestamp: 3}))
	data, ok := receive(t, ch2).Data.(event.EscrowShutdownEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(3), data.Timestamp)

	eb.Stop()
	_, ok = <-ch2
	assert.False(t, ok)
}

func TestSubscribeFuncSurvivesPanic(t *testing.T) {
	typ := event.AirdropMintEventType
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	var received atomic.Int32
	eb.SubscribeFunc(typ, func(event.Event) {
		if received.Add(1) == 1 {
			panic("handler failure")
		}
	})
	eb.Publish(typ, event.NewEvent(typ, event.AirdropMintEvent{}))
	eb.Publish(typ, event.NewEvent(typ, event.AirdropMintEvent{}))
	require.Eventually(t, func() bool {
		return received.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAsync(t *testing.T) {
	typ := event.RewardClaimedEventType
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(typ)
	require.True(t, eb.PublishAsync(typ, event.NewEvent(typ, event.RewardClaimedEvent{
		Wallet: testAccount,
		Amount: uint256.NewInt(123),
		Nonce:  uint256.NewInt(0),
	})))
	data, ok := receive(t, ch).Data.(event.RewardClaimedEvent)
	require.True(t, ok)
	assert.Equal(t, uint256.NewInt(123), data.Amount)
}

func TestEventBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(event.EscrowDepositEventType)
	for range 3 {
		eb.Publish(
			event.EscrowDepositEventType,
			event.NewEvent(event.EscrowDepositEventType, event.EscrowDepositEvent{
				Kind: event.CreateLockType,
			}),
		)
	}
	for range 3 {
		receive(t, ch)
	}
	expected := `
# HELP veescrow_event_published_total events published, by type
# TYPE veescrow_event_published_total counter
veescrow_event_published_total{type="escrow.deposit"} 3
# HELP veescrow_event_subscribers active event subscribers, by type and kind
# TYPE veescrow_event_subscribers gauge
veescrow_event_subscribers{kind="in-memory",type="escrow.deposit"} 1
`
	assert.NoError(
		t,
		promtestutil.GatherAndCompare(
			reg,
			strings.NewReader(expected),
			"veescrow_event_published_total",
			"veescrow_event_subscribers",
		),
	)
}

func TestDepositKindString(t *testing.T) {
	assert.Equal(t, "deposit_for", event.DepositForType.String())
	assert.Equal(t, "create_lock", event.CreateLockType.String())
	assert.Equal(t, "increase_amount", event.IncreaseLockAmountType.String())
	assert.Equal(t, "increase_unlock_time", event.IncreaseUnlockTimeType.String())
	assert.Equal(t, "unknown", event.DepositKind(99).String())
}
