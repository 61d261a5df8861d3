package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/localzure/localzure/pkg/state"
)

const probeNamespace = "health"

// BackendChecker verifies the state backend by writing and reading back a
// short-lived probe key
type BackendChecker struct {
	backend state.Backend
}

// NewBackendChecker creates a checker for the given backend
func NewBackendChecker(backend state.Backend) *BackendChecker {
	return &BackendChecker{backend: backend}
}

// Name identifies the checked subsystem
func (c *BackendChecker) Name() string {
	return fmt.Sprintf("backend:%s", c.backend.Type())
}

// Check writes a probe key with a short TTL and reads it back
func (c *BackendChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{CheckedAt: start}

	key := "probe:" + uuid.New().String()
	if err := c.backend.Set(ctx, probeNamespace, key, "ok", 30*time.Second); err != nil {
		result.Message = fmt.Sprintf("probe write failed: %v", err)
		result.Duration = time.Since(start).String()
		return result
	}

	_, found, err := c.backend.Get(ctx, probeNamespace, key)
	if err != nil {
		result.Message = fmt.Sprintf("probe read failed: %v", err)
		result.Duration = time.Since(start).String()
		return result
	}
	if !found {
		result.Message = "probe key missing after write"
		result.Duration = time.Since(start).String()
		return result
	}

	// Best effort cleanup; the TTL reaps it regardless
	_, _ = c.backend.Delete(ctx, probeNamespace, key)

	result.Healthy = true
	result.Duration = time.Since(start).String()
	return result
}
