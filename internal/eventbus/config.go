package eventbus

import "corridor/internal/platform/config"

// TopologyFromConfig builds the topology both roles declare. Empty fields
// fall back to the defaults.
func TopologyFromConfig(cfg config.BusConfig) Topology {
	t := DefaultTopology()
	if cfg.Exchange != "" {
		t.Exchange = cfg.Exchange
	}
	if cfg.Queue != "" || cfg.Binding != "" {
		q := t.Queues[0]
		if cfg.Queue != "" {
			q.Queue = cfg.Queue
		}
		if cfg.Binding != "" {
			q.Pattern = cfg.Binding
		}
		t.Queues = []QueueBinding{q}
	}
	t.DeadLetterExchange = cfg.DeadLetterExchange
	return t
}

// ReconnectFromConfig returns the reconnect backoff bounds.
func ReconnectFromConfig(cfg config.BusConfig) Reconnect {
	r := DefaultReconnect
	if cfg.ReconnectInitial > 0 {
		r.Initial = cfg.ReconnectInitial
	}
	if cfg.ReconnectMax > 0 {
		r.Max = cfg.ReconnectMax
	}
	return r
}
