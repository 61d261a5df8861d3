package health

import (
	"context"
	"sync"
	"time"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Duration  string    `json:"duration"`
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Name identifies the checked subsystem
	Name() string
}

// Report is the aggregate health of all registered subsystems
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks"`
}

// Registry runs a set of named checkers and aggregates their results
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewRegistry creates an empty health registry
func NewRegistry() *Registry {
	return &Registry{timeout: 5 * time.Second}
}

// Register adds a checker to the registry
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

// Check runs every registered checker and aggregates the outcome. The
// overall status is "ok" only when every subsystem reports healthy.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	report := Report{
		Status: "ok",
		Checks: make(map[string]Result, len(checkers)),
	}

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		result := c.Check(checkCtx)
		cancel()

		report.Checks[c.Name()] = result
		if !result.Healthy {
			report.Status = "degraded"
		}
	}
	return report
}
