package httpapi

import "time"

// Config defines HTTP API settings.
type Config struct {
	Addr string
	// HeartbeatInterval is the cadence of server pings on observer sockets
	// and of registry sweeps.
	HeartbeatInterval time.Duration
}

const shutdownTimeout = 5 * time.Second
