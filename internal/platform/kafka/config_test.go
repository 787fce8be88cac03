package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerList(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		want    []string
	}{
		{"empty", "", nil},
		{"single", "kafka:9092", []string{"kafka:9092"}},
		{"trims and drops blanks", " a:9092 , ,b:9092,", []string{"a:9092", "b:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultProducerConfig()
			cfg.Brokers = tt.brokers
			assert.Equal(t, tt.want, cfg.BrokerList())
		})
	}
}
