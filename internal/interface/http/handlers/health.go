// Package handlers contains the readiness checks behind the worker's status endpoints.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/streakhub/internal/infrastructure/scheduler"
)

// Check reports a dependency as unavailable by returning an error.
type Check func(ctx context.Context) error

// Report is the /readyz body.
type Report struct {
	Ready     bool                   `json:"ready"`
	Failed    []string               `json:"failed,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Readiness runs named checks in parallel, each with its own timeout.
type Readiness struct {
	version string
	started time.Time
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	checks map[string]Check
}

// NewReadiness creates a Readiness with a 5s per-check timeout.
func NewReadiness(version string) *Readiness {
	return &Readiness{
		version: version,
		started: time.Now(),
		timeout: 5 * time.Second,
		now:     time.Now,
		checks:  make(map[string]Check),
	}
}

// WithTimeout sets the per-check timeout.
func (r *Readiness) WithTimeout(d time.Duration) *Readiness {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Add registers a check, replacing one with the same name.
func (r *Readiness) Add(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check runs every registered check. With no checks the worker counts as ready.
func (r *Readiness) Check(ctx context.Context) Report {
	r.mu.RLock()
	checks := make(map[string]Check, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	report := Report{
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    r.now().Sub(r.started).Round(time.Second).String(),
		Version:   r.version,
		CheckedAt: r.now().UTC(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.run(ctx, check)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = res
			if !res.OK {
				report.Ready = false
				report.Failed = append(report.Failed, name)
			}
		}()
	}
	wg.Wait()

	sort.Strings(report.Failed)
	return report
}

func (r *Readiness) run(ctx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	res := CheckResult{OK: err == nil, Duration: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is the postgres connection or the redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps a Pinger.
func PingCheck(p Pinger) Check {
	return p.Ping
}

// JobLister is satisfied by scheduler.Scheduler.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// JobFreshnessCheck fails when the named job's last run failed or when it has
// not completed within maxAge. Before the first run the age is measured from
// the worker start.
func (r *Readiness) JobFreshnessCheck(jobs JobLister, name string, maxAge time.Duration) Check {
	return func(context.Context) error {
		for _, info := range jobs.ListJobs() {
			if info.Name != name {
				continue
			}
			if !info.Enabled {
				return nil
			}
			last := r.started
			if res := info.LastResult; res != nil {
				if !res.Success {
					return fmt.Errorf("%s last run failed: %v", name, res.Error)
				}
				last = res.CompletedAt
			}
			if age := r.now().Sub(last); age > maxAge {
				return fmt.Errorf("%s has not completed for %s", name, age.Round(time.Minute))
			}
			return nil
		}
		return fmt.Errorf("job %s is not registered", name)
	}
}

// Summary formats a report for a log line.
func (rep Report) Summary() string {
	if rep.Ready {
		return "ready"
	}
	return "not ready: " + strings.Join(rep.Failed, ", ")
}
