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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	eventsTotal    *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
}

func (e *EventBus) initMetrics(promRegistry prometheus.Registerer) {
	factory := promauto.With(promRegistry)
	e.metrics = &eventMetrics{
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veescrow_event_published_total",
				Help: "events published, by type",
			},
			[]string{"type"},
		),
		subscribers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "veescrow_event_subscribers",
				Help: "active event subscribers, by type and kind",
			},
			[]string{"type", "kind"},
		),
		deliveryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veescrow_event_delivery_errors_total",
				Help: "failed or dropped event deliveries, by type and kind",
			},
			[]string{"type", "kind"},
		),
	}
}
