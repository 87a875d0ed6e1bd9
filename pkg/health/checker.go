package health

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"
)

const maxWorkers = 10

// Checker probes a set of services concurrently. Probe functions are
// injectable for tests; defaults cover real HTTP, TCP and database
// round-trips.
type Checker struct {
	profile    Profile
	policy     RetryPolicy
	httpClient *http.Client
	dialer     *net.Dialer

	// dbProbe performs the dependency round-trip of a database check.
	dbProbe func(ctx context.Context, driver, dsn string) error
}

// Option configures a Checker.
type Option func(*Checker)

// WithProfile sets the performance profile scaling per-service
// timeouts.
func WithProfile(name string) Option {
	return func(c *Checker) { c.profile = ProfileByName(name) }
}

// WithRetryPolicy overrides the delay policy between attempts.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Checker) { c.policy = policy }
}

// WithHTTPClient overrides the client used for http probes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) { c.httpClient = client }
}

// WithDatabaseProbe overrides the database round-trip.
func WithDatabaseProbe(probe func(ctx context.Context, driver, dsn string) error) Option {
	return func(c *Checker) { c.dbProbe = probe }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		profile:    ProfileByName("standard"),
		policy:     DefaultRetryPolicy(),
		httpClient: &http.Client{},
		dialer:     &net.Dialer{},
	}
	c.dbProbe = defaultDatabaseProbe
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultDatabaseProbe(ctx context.Context, driver, dsn string) error {
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database round-trip failed: %w", err)
	}
	return nil
}

// CheckAll probes every service under the overall timeout and returns
// the per-service results. Checks still pending when the deadline fires
// are reported unhealthy with an overall-timeout error; completed
// results are preserved and the report carries TimeoutExceeded.
func (c *Checker) CheckAll(ctx context.Context, services []ServiceSpec, overallTimeout time.Duration) *Report {
	start := time.Now()
	report := &Report{Results: make(map[string]HealthResult, len(services))}
	if len(services) == 0 {
		return report
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if overallTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, overallTimeout)
		defer cancel()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(min(len(services), maxWorkers))

	for _, spec := range services {
		g.Go(func() error {
			result := c.checkService(gctx, spec)
			mu.Lock()
			report.Results[spec.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if runCtx.Err() != nil {
		report.TimeoutExceeded = true
		for _, spec := range services {
			if r, ok := report.Results[spec.Name]; ok && (r.Healthy || r.Error != "overall timeout") {
				continue
			}
			report.Results[spec.Name] = HealthResult{
				Name:    spec.Name,
				Healthy: false,
				Error:   "overall timeout",
			}
		}
	}

	report.Elapsed = time.Since(start)
	return report
}

// checkService runs one service's attempt loop.
func (c *Checker) checkService(ctx context.Context, spec ServiceSpec) HealthResult {
	spec.SetDefaults()

	timeout := c.profile.EffectiveTimeout(spec.Timeout())
	policy := c.policy
	if spec.RetryBaseDelaySeconds > 0 {
		policy.BaseDelay = time.Duration(spec.RetryBaseDelaySeconds * float64(time.Second))
	}

	result := HealthResult{Name: spec.Name}
	start := time.Now()

	for attempt := 0; attempt <= spec.RetryCount; attempt++ {
		result.Attempts = attempt + 1

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		outcome := c.probe(attemptCtx, spec)
		cancel()

		result.StatusCode = outcome.statusCode
		result.RaceCondition = outcome.race

		if outcome.err == nil {
			result.Healthy = true
			result.Error = ""
			break
		}
		result.Error = outcome.err.Error()

		if ctx.Err() != nil {
			result.Error = "overall timeout"
			break
		}
		if outcome.terminal || attempt == spec.RetryCount {
			break
		}

		slog.Debug("health check retrying",
			"service", spec.Name, "attempt", attempt+1, "error", outcome.err)
		if !sleepCtx(ctx, policy.Delay(attempt)) {
			result.Error = "overall timeout"
			break
		}
	}

	result.ResponseTime = time.Since(start)
	return result
}

type probeOutcome struct {
	statusCode int
	err        error

	// terminal marks errors that will not improve with retries (4xx
	// other than 408/429, deep-check races).
	terminal bool
	race     bool
}

func (c *Checker) probe(ctx context.Context, spec ServiceSpec) probeOutcome {
	switch spec.Type {
	case CheckTCP:
		return c.probeTCP(ctx, spec)
	case CheckDatabase:
		return c.probeDatabase(ctx, spec)
	default:
		return c.probeHTTP(ctx, spec)
	}
}

func (c *Checker) probeHTTP(ctx context.Context, spec ServiceSpec) probeOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return probeOutcome{err: err, terminal: true}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return probeOutcome{err: err}
	}
	defer resp.Body.Close()

	out := probeOutcome{statusCode: resp.StatusCode}
	switch {
	case resp.StatusCode < 400:
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		out.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode < 500:
		out.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		out.terminal = true
	default:
		out.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return out
}

func (c *Checker) probeTCP(ctx context.Context, spec ServiceSpec) probeOutcome {
	addr := net.JoinHostPort(spec.Host, fmt.Sprintf("%d", spec.Port))
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return probeOutcome{err: err}
	}
	conn.Close()
	return probeOutcome{}
}

// probeDatabase optionally runs a surface HTTP probe first. A surface
// success followed by a failed round-trip is the race signature: the
// service reports ready before its dependency actually is.
func (c *Checker) probeDatabase(ctx context.Context, spec ServiceSpec) probeOutcome {
	surfaceStatus := 0
	if spec.DeepHealthCheck && spec.URL != "" {
		surface := c.probeHTTP(ctx, spec)
		if surface.err != nil {
			return surface
		}
		surfaceStatus = surface.statusCode
	}

	if err := c.dbProbe(ctx, spec.Driver, spec.DSN); err != nil {
		out := probeOutcome{statusCode: surfaceStatus, err: err}
		if surfaceStatus != 0 {
			out.race = true
			out.terminal = true
		}
		return out
	}
	return probeOutcome{statusCode: surfaceStatus}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
