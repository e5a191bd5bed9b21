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
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// escrowMetrics are labeled with the ledger symbol so several ledgers can
// share one registry
type escrowMetrics struct {
	operations   *prometheus.CounterVec
	activeLocks  prometheus.Gauge
	lockedSupply prometheus.Gauge
	shutdown     prometheus.Gauge
}

func initMetrics(reg prometheus.Registerer, symbol string) *escrowMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"ledger": symbol}
	return &escrowMetrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "veescrow_escrow_operations_total",
				Help:        "escrow operations, by kind and result",
				ConstLabels: labels,
			},
			[]string{"op", "result"},
		),
		activeLocks: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "veescrow_escrow_active_locks",
			Help:        "accounts holding a nonzero lock",
			ConstLabels: labels,
		}),
		lockedSupply: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "veescrow_escrow_locked_supply",
			Help:        "escrowed token amount in base units",
			ConstLabels: labels,
		}),
		shutdown: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "veescrow_escrow_shutdown",
			Help:        "1 once the ledger has been shut down",
			ConstLabels: labels,
		}),
	}
}

func (m *escrowMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (l *Ledger) updateGauges() {
	if l.metrics == nil {
		return
	}
	l.mu.RLock()
	active := len(l.locked)
	supply, _ := new(big.Float).SetInt(l.supply.ToBig()).Float64()
	shutdown := l.isShutdown
	l.mu.RUnlock()
	l.metrics.activeLocks.Set(float64(active))
	l.metrics.lockedSupply.Set(supply)
	if shutdown {
		l.metrics.shutdown.Set(1)
	}
}
