package health

import (
	"context"
	"time"
)

// CheckResult is one dependency's verdict, serialized into the readiness
// payload.
type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner fans a readiness probe out to every registered checker.
// The overall budget bounds the whole probe; each checker additionally
// gets its own per-check budget so one slow dependency cannot eat the
// time of the rest.
type ProbeRunner struct {
	timeout         time.Duration
	perCheckTimeout time.Duration
	checkers        []Checker
}

func NewProbeRunner(timeout, perCheckTimeout time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProbeRunner{timeout: timeout, perCheckTimeout: perCheckTimeout, checkers: checkers}
}

// Ready runs every checker and reports whether all of them passed.
// Results are returned in registration order even on failure so the
// payload is stable for operators.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, 0, len(p.checkers))
	ready := true
	for _, checker := range p.checkers {
		result := p.runCheck(ctx, checker)
		if !result.Healthy {
			ready = false
		}
		results = append(results, result)
	}
	return ready, results
}

func (p *ProbeRunner) runCheck(ctx context.Context, checker Checker) CheckResult {
	if p.perCheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.perCheckTimeout)
		defer cancel()
	}
	started := time.Now()
	result := checker.Check(ctx)
	result.LatencyMS = time.Since(started).Milliseconds()
	return result
}
