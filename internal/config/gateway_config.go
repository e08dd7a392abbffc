package config

import (
	"strings"
	"time"
)

type GatewayConfig interface {
	GetHeartbeatInterval() time.Duration
	GetSendQueueSize() int
	GetReadLimit() int64
	// GetAllowedOriginPatterns lists browser origins allowed to dial the
	// control plane. Empty means origin checking stays off, which suits the
	// non-browser service clients the socket exists for.
	GetAllowedOriginPatterns() []string
}

type GatewayVars struct{}

var _ GatewayConfig = GatewayVars{}

func (GatewayVars) GetHeartbeatInterval() time.Duration {
	return getDurationEnv("GATEWAY_HEARTBEAT_INTERVAL", 30*time.Second)
}

func (GatewayVars) GetSendQueueSize() int {
	return getIntEnv("GATEWAY_SEND_QUEUE_SIZE", 64)
}

func (GatewayVars) GetReadLimit() int64 {
	return int64(getIntEnv("GATEWAY_READ_LIMIT", 1<<20))
}

func (GatewayVars) GetAllowedOriginPatterns() []string {
	raw := GetEnv("GATEWAY_ALLOWED_ORIGINS", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	patterns := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
