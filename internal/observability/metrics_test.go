package observability

import (
	"testing"
	"time"

	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("bench-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordCommand("local", "completed", 340*time.Millisecond)
	RecordCommand("ssh", "timed_out", 10*time.Second)
	RecordCommandKill("local")
	RecordProbe("192.168.1.40:5555", "unreachable")
	RecordReconnect("192.168.1.40:5555", "network", true)

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}
