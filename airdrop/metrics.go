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

package airdrop

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type minterMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	minted     *prometheus.CounterVec
}

func initMetrics(reg prometheus.Registerer) *minterMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &minterMetrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veescrow_airdrop_operations_total",
				Help: "successful airdrop operations, by path",
			},
			[]string{"path"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veescrow_airdrop_failures_total",
				Help: "rejected airdrop operations, by path",
			},
			[]string{"path"},
		),
		minted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veescrow_airdrop_minted_total",
				Help: "destination tokens minted in base units, by path",
			},
			[]string{"path"},
		),
	}
}

func (m *minterMetrics) succeeded(path string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(path).Inc()
}

func (m *minterMetrics) failed(path string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(path).Inc()
}

func (m *minterMetrics) addMinted(path string, amount *uint256.Int) {
	if m == nil {
		return
	}
	v, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.minted.WithLabelValues(path).Add(v)
}
