package backend

import "fmt"

// Status is the health state of a backend as decided by the health monitor.
type Status int

const (
	StatusHealthy Status = iota
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status the way dashboards consume it ("healthy", "unhealthy").
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusHealthy:
		return []byte("healthy"), nil
	case StatusUnhealthy:
		return []byte("unhealthy"), nil
	default:
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy", "HEALTHY":
		*s = StatusHealthy
	case "unhealthy", "UNHEALTHY":
		*s = StatusUnhealthy
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}

// Thresholds configures the hysteresis of the health state machine: how many
// consecutive failed probes take a healthy backend down and how many
// consecutive successful probes bring an unhealthy one back.
type Thresholds struct {
	Unhealthy int
	Healthy   int
}

// DefaultThresholds marks a backend down slowly and brings it back quickly.
var DefaultThresholds = Thresholds{Unhealthy: 3, Healthy: 1}
