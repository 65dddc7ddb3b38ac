package offer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_eligibility_evaluations_total",
		Help: "Eligibility aggregate decisions by outcome.",
	}, []string{"outcome"})

	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_redemptions_total",
		Help: "Redemption attempts by outcome.",
	}, []string{"outcome"})

	segmentMembersWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offer_segment_members_written_total",
		Help: "Segment member rows written by the segment computer.",
	})
)
