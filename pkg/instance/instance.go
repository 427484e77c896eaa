package instance

import (
	"os"

	"github.com/angelmondragon/restaurant-backend/pkg/env"
)

// GetID identifies this process as a lock owner. WORKER_ID wins, then the
// hostname (the pod name on Kubernetes).
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
