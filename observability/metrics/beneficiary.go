package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type BeneficiaryMetrics struct {
	operations     *prometheus.CounterVec
	oracleFailures prometheus.Counter
	feeBalance     prometheus.Gauge
}

var (
	beneficiaryOnce     sync.Once
	beneficiaryRegistry *BeneficiaryMetrics
)

func Beneficiary() *BeneficiaryMetrics {
	beneficiaryOnce.Do(func() {
		beneficiaryRegistry = &BeneficiaryMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "beneficiary_operations_total",
				Help: "Count of ledger operations by operation and outcome.",
			}, []string{"op", "outcome"}),
			oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "beneficiary_oracle_failures_total",
				Help: "Count of collateral oracle lookups that failed.",
			}),
			feeBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "beneficiary_treasury_fee_balance_fil",
				Help: "Accumulated protocol fee balance, in whole FIL.",
			}),
		}
		prometheus.MustRegister(
			beneficiaryRegistry.operations,
			beneficiaryRegistry.oracleFailures,
			beneficiaryRegistry.feeBalance,
		)
	})
	return beneficiaryRegistry
}

// RecordOperation increments the per-operation outcome counter. Outcome is
// either "ok" or a stable reason code.
func (m *BeneficiaryMetrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *BeneficiaryMetrics) RecordOracleFailure() {
	if m == nil {
		return
	}
	m.oracleFailures.Inc()
}

func (m *BeneficiaryMetrics) SetFeeBalanceFIL(v float64) {
	if m == nil {
		return
	}
	m.feeBalance.Set(v)
}
