// Package health aggregates dependency checks for the /health endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// severity orders statuses so the overall status is the worst one seen.
var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

type entry struct {
	Checker
	// failAs is the status a failing check contributes.
	failAs Status
}

// CheckerRegistry runs all checks concurrently, each with its own timeout.
type CheckerRegistry struct {
	entries []entry
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

// Register adds a dependency the service cannot run without.
func (r *CheckerRegistry) Register(c Checker) {
	r.entries = append(r.entries, entry{Checker: c, failAs: StatusUnhealthy})
}

// RegisterOptional adds a dependency whose failure only degrades the service.
func (r *CheckerRegistry) RegisterOptional(c Checker) {
	r.entries = append(r.entries, entry{Checker: c, failAs: StatusDegraded})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make([]CheckResult, len(r.entries))

	var wg sync.WaitGroup
	for i, e := range r.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			res := CheckResult{Status: StatusHealthy}
			if err := e.Check(ctx); err != nil {
				res = CheckResult{Status: e.failAs, Message: err.Error()}
			}
			res.Timestamp = time.Now()
			results[i] = res
		}()
	}
	wg.Wait()

	h := Health{Status: StatusHealthy, Timestamp: time.Now(), Checks: make(map[string]CheckResult, len(results))}
	for i, res := range results {
		h.Checks[r.entries[i].Name()] = res
		if severity[res.Status] > severity[h.Status] {
			h.Status = res.Status
		}
	}
	return h
}

// Handler answers 503 when a critical check failed and 200 otherwise.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := r.Check(c.Request.Context())
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	}
}
