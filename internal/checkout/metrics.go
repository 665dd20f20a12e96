package checkout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_opened_total",
		Help: "Total number of checkout sessions opened",
	})

	checkoutSuccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_success_total",
		Help: "Total number of successful payments by method",
	}, []string{"method"})

	checkoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of failed payment submissions by reason",
	}, []string{"reason"})

	walletProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_wallet_probe_total",
		Help: "Wallet availability probe outcomes",
	}, []string{"result"})
)
