package kafka

import (
	"strings"
	"time"
)

// ProducerConfig configures the producer behind the security event stream.
type ProducerConfig struct {
	// Brokers is a comma-separated seed list, as read from KAFKA_BROKERS.
	Brokers         string
	ClientID        string
	Acks            string
	Retries         int
	Linger          time.Duration
	DeliveryTimeout time.Duration
}

// DefaultProducerConfig favours delivery over latency; the producer only
// runs off the request path, inside the audit drain loop.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		ClientID:        "edgeguard",
		Acks:            "all",
		Retries:         3,
		Linger:          10 * time.Millisecond,
		DeliveryTimeout: 30 * time.Second,
	}
}

// BrokerList splits Brokers, dropping blanks.
func (c ProducerConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
