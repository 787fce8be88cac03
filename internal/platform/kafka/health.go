package kafka

import (
	"context"
	"errors"
)

// Pinger is satisfied by the producer.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// HealthChecker reports Kafka broker reachability through the producer's
// own client, so it checks the same connections events are sent over.
type HealthChecker struct {
	pinger Pinger
}

func NewHealthChecker(p Pinger) *HealthChecker {
	return &HealthChecker{pinger: p}
}

// Check returns nil if at least one broker answered a ping.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pinger == nil {
		return errors.New("kafka not configured")
	}
	if !h.pinger.Healthy(ctx) {
		return errors.New("no kafka brokers reachable")
	}
	return nil
}

// Name returns the check name for health reporting.
func (h *HealthChecker) Name() string {
	return "kafka"
}
