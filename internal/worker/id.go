package worker

import (
	"fmt"
	"os"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ResolveWorkerID picks the identity this process locks jobs under. It must
// survive restarts, otherwise the startup release can never match rows locked
// by the previous incarnation: explicit config first, then the hostname
// (stable per machine/container), with a random id as last resort.
func ResolveWorkerID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return id
}
