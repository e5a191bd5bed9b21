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

package event

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 64
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// asyncEvent wraps an event with its type for the async queue
type asyncEvent struct {
	eventType EventType
	event     Event
}

type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]Subscriber
	metrics     *eventMetrics
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	Logger      *slog.Logger

	// Async publishing
	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	stopCh     chan struct{}
	stopped    bool
	closed     bool
	stopMu     sync.RWMutex
	stopOpMu   sync.Mutex // serializes Stop()

	// Tracks SubscribeFunc handler goroutines
	subscriberWg sync.WaitGroup
}

// NewEventBus creates a new EventBus with async worker pool
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]Subscriber),
		Logger:      logger,
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	e.startWorkers()
	return e
}

func (e *EventBus) startWorkers() {
	for range AsyncWorkerPoolSize {
		e.asyncWg.Add(1)
		go e.asyncWorker(e.asyncQueue, e.stopCh)
	}
}

// asyncWorker processes events from the async queue
func (e *EventBus) asyncWorker(queue <-chan asyncEvent, stopCh <-chan struct{}) {
	defer e.asyncWg.Done()
	for {
		select {
		case <-stopCh:
			return
		case ae, ok := <-queue:
			if !ok {
				return
			}
			e.Publish(ae.eventType, ae.event)
		}
	}
}

// Subscriber is a delivery abstraction that allows the EventBus to deliver
// events to in-memory channels and to external subscribers via the same
// interface.
// Implementations must ensure Close() is idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

// channelSubscriber is the in-memory subscriber adapter. Deliver never
// blocks: when the buffer is full the event is dropped and counted
type channelSubscriber struct {
	ch      chan Event
	onDrop  func(Event)
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func newChannelSubscriber(buffer int, onDrop func(Event)) *channelSubscriber {
	return &channelSubscriber{
		ch:     make(chan Event, buffer),
		onDrop: onDrop,
	}
}

func (c *channelSubscriber) Deliver(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- evt:
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop(evt)
		}
	}
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

func (e *EventBus) dropHandler(eventType EventType) func(Event) {
	return func(Event) {
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "in-memory-dropped").
				Inc()
		}
		if e.Logger != nil {
			e.Logger.Warn(
				"subscriber queue full, dropping event",
				"type", eventType,
			)
		}
	}
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	chSub := newChannelSubscriber(EventQueueSize, e.dropHandler(eventType))
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]Subscriber)
	}
	e.subscribers[eventType][subId] = chSub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), "in-memory").
			Inc()
	}
	return subId, chSub.ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via
// a callback function. A panicking handler is logged and keeps receiving.
// It returns 0 while the bus is stopping
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	// Hold stopMu through Add(1) so a concurrent Stop cannot reach Wait first
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return 0
	}
	subId, evtCh := e.Subscribe(eventType)
	e.subscriberWg.Add(1)
	go func() {
		defer e.subscriberWg.Done()
		for evt := range evtCh {
			e.runHandler(eventType, handlerFunc, evt)
		}
	}()
	return subId
}

func (e *EventBus) runHandler(
	eventType EventType,
	handlerFunc EventHandlerFunc,
	evt Event,
) {
	defer func() {
		if r := recover(); r != nil {
			logger := e.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error(
				"event handler panic",
				"type", eventType,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	handlerFunc(evt)
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var subToClose Subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if sub, ok2 := evtTypeSubs[subId]; ok2 {
			subToClose = sub
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(sub)).
					Dec()
			}
		}
	}
	e.mu.Unlock()

	if subToClose != nil {
		subToClose.Close()
	}
}

func subscriberKind(sub Subscriber) string {
	if _, ok := sub.(*channelSubscriber); ok {
		return "in-memory"
	}
	return "remote"
}

// Publish allows a producer to send an event of a particular type to all subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	// Build list of subscribers inside read lock to avoid map race condition
	e.mu.RLock()
	subs, ok := e.subscribers[eventType]
	type subItem struct {
		id  EventSubscriberId
		sub Subscriber
	}
	subList := make([]subItem, 0, len(subs))
	if ok {
		for id, sub := range subs {
			subList = append(subList, subItem{id: id, sub: sub})
		}
	}
	e.mu.RUnlock()
	for _, item := range subList {
		var deliverErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					deliverErr = fmt.Errorf("subscriber deliver panic: %v", r)
				}
			}()
			deliverErr = item.sub.Deliver(evt)
		}()

		if deliverErr != nil {
			// Unregister the failing subscriber
			e.Unsubscribe(eventType, item.id)
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), subscriberKind(item.sub)).
					Inc()
			}
			logger := e.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Debug(
				"event delivery error",
				"type", eventType,
				"err", deliverErr,
			)
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync enqueues an event for asynchronous delivery to all subscribers.
// This method returns immediately without blocking on subscriber delivery.
// Returns false if the EventBus is stopped or the async queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
		return true
	default:
		if e.Logger != nil {
			e.Logger.Warn(
				"async event queue full, dropping event",
				"type", eventType,
			)
		}
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").
				Inc()
		}
		return false
	}
}

// RegisterSubscriber allows external adapters to register with the
// EventBus. It returns the assigned subscriber id.
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]Subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), "remote").Inc()
	}
	return subId
}

// Stop closes all subscriber channels and clears the subscribers map.
// SubscribeFunc goroutines exit before Stop returns.
// The EventBus can still be reused after Stop() is called.
func (e *EventBus) Stop() {
	e.stop(true)
}

// Close stops the bus for good. No async workers remain afterwards and
// PublishAsync rejects every later event
func (e *EventBus) Close() {
	e.stop(false)
}

func (e *EventBus) stop(restart bool) {
	e.stopOpMu.Lock()
	defer e.stopOpMu.Unlock()

	e.stopMu.Lock()
	wasAlreadyStopped := e.stopped
	e.stopped = true
	if !restart {
		e.closed = true
	}
	stopCh := e.stopCh
	e.stopMu.Unlock()

	if !wasAlreadyStopped {
		close(stopCh)
		e.asyncWg.Wait()
	}

	e.mu.Lock()
	subsCopy := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]Subscriber)
	e.mu.Unlock()

	for _, evtTypeSubs := range subsCopy {
		for _, sub := range evtTypeSubs {
			sub.Close()
		}
	}
	e.subscriberWg.Wait()

	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}

	// Reinitialize async infrastructure to allow continued use
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if e.closed {
		return
	}
	e.asyncQueue = make(chan asyncEvent, AsyncQueueSize)
	e.stopCh = make(chan struct{})
	e.stopped = false
	e.startWorkers()
}
