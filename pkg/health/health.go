package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"llm-duet/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func() (Status, string, error)

// Checker manages health checks for the system
type Checker struct {
	checks     map[string]Check
	components map[string]*Component
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger) *Checker {
	checker := &Checker{
		checks:     make(map[string]Check),
		components: make(map[string]*Component),
		log:        log,
	}

	checker.RegisterCheck("self", func() (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:   name,
		Status: StatusUp,
	}
}

// RunChecks executes all registered checks and returns the component states.
func (c *Checker) RunChecks() []Component {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	results := make([]Component, 0, len(c.checks))
	for name, check := range c.checks {
		status, description, err := check()

		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()
		if err != nil {
			component.Error = err.Error()
			c.log.Warn("health check failed", "component", name, "error", err.Error())
		} else {
			component.Error = ""
		}

		results = append(results, *component)
	}
	return results
}

// Overall reduces component states to a single status: down if any
// component is down, degraded if any is degraded, up otherwise.
func Overall(components []Component) Status {
	overall := StatusUp
	for _, comp := range components {
		switch comp.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// Handler returns an HTTP handler reporting the checker's state.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := c.RunChecks()
		overall := Overall(components)

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     overall,
			"components": components,
			"time":       time.Now().Format(time.RFC3339),
		})
	}
}
