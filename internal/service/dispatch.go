package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
	"github.com/calebwren/rapport/internal/source"
)

// errCircuitOpen marks a source skipped because its circuit was open.
var errCircuitOpen = errors.New("circuit open")

// DispatchResult aggregates the outcome of one scatter-gather pass across
// the enabled sources. A source that errored, timed out, was skipped by the
// limiter or breaker, or returned nothing counts as failed; only a source
// that produced at least one candidate counts as found.
type DispatchResult struct {
	SourcesQueried  []domain.SourceTag `json:"sources_queried"`
	SourcesFound    []domain.SourceTag `json:"sources_found"`
	SourcesFailed   []domain.SourceTag `json:"sources_failed"`
	Candidates      []domain.Candidate `json:"candidates"`
	TotalCandidates int                `json:"total_candidates"`
	ElapsedMs       int64              `json:"elapsed_ms"`
}

// SourceDispatcher fans one profile lookup out across source connectors and
// gathers every branch outcome. Source platforms have no SLA, so each branch
// is isolated: one slow, broken or hostile source never takes down another.
type SourceDispatcher struct {
	registry *source.Registry
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	timeout  time.Duration
	cooldown time.Duration
}

// NewSourceDispatcher wires a dispatcher over the shared limiter and breaker.
func NewSourceDispatcher(registry *source.Registry, limiter *RateLimiter, breaker *CircuitBreaker, timeout, cooldown time.Duration) *SourceDispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &SourceDispatcher{
		registry: registry,
		limiter:  limiter,
		breaker:  breaker,
		timeout:  timeout,
		cooldown: cooldown,
	}
}

type branchOutcome struct {
	tag        domain.SourceTag
	candidates []domain.Candidate
	err        error
}

// Dispatch queries the enabled sources concurrently for the named person.
// Unknown tags are dropped, not errors. The sessionKey scopes circuit
// breaker state to the calling scrape identity. Dispatch never returns an
// error: every branch outcome is captured in the result.
func (d *SourceDispatcher) Dispatch(ctx context.Context, query, conversationContext string, enabled []domain.SourceTag, sessionKey string) *DispatchResult {
	start := time.Now()
	res := &DispatchResult{
		SourcesQueried: []domain.SourceTag{},
		SourcesFound:   []domain.SourceTag{},
		SourcesFailed:  []domain.SourceTag{},
		Candidates:     []domain.Candidate{},
	}

	var connectors []source.Connector
	for _, tag := range enabled {
		c, ok := d.registry.Get(tag)
		if !ok {
			logger.Debug("dropping unknown source tag %q", tag)
			continue
		}
		connectors = append(connectors, c)
		res.SourcesQueried = append(res.SourcesQueried, tag)
	}
	if len(connectors) == 0 {
		res.ElapsedMs = time.Since(start).Milliseconds()
		return res
	}

	hint := source.Hint{Name: query, Context: conversationContext}
	outcomes := make(chan branchOutcome, len(connectors))
	var wg sync.WaitGroup
	for _, c := range connectors {
		wg.Add(1)
		go func(c source.Connector) {
			defer wg.Done()
			outcomes <- d.fetchOne(ctx, c, hint, sessionKey)
		}(c)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	byTag := make(map[domain.SourceTag]branchOutcome, len(connectors))
	for o := range outcomes {
		byTag[o.tag] = o
	}

	// Branches finish in arbitrary order; report in the stable tag order.
	for _, tag := range domain.AllSourceTags() {
		o, ok := byTag[tag]
		if !ok {
			continue
		}
		if o.err != nil || len(o.candidates) == 0 {
			res.SourcesFailed = append(res.SourcesFailed, tag)
			continue
		}
		res.SourcesFound = append(res.SourcesFound, tag)
		res.Candidates = append(res.Candidates, o.candidates...)
	}
	res.TotalCandidates = len(res.Candidates)
	res.ElapsedMs = time.Since(start).Milliseconds()

	logger.With(logger.Fields{
		logger.FieldComponent:  "dispatcher",
		"sources_queried":      len(res.SourcesQueried),
		"sources_found":        len(res.SourcesFound),
		"sources_failed":       len(res.SourcesFailed),
		logger.FieldCount:      res.TotalCandidates,
		logger.FieldDurationMs: res.ElapsedMs,
	}).Info(ctx, "source dispatch complete")
	return res
}

// fetchOne runs one source branch: breaker check, budget check, the fetch
// itself under a per-call timeout. A panicking connector is contained here.
func (d *SourceDispatcher) fetchOne(ctx context.Context, c source.Connector, hint source.Hint, sessionKey string) (out branchOutcome) {
	tag := c.Tag()
	out.tag = tag
	defer func() {
		if r := recover(); r != nil {
			out.candidates = nil
			out.err = fmt.Errorf("connector %s panicked: %v", tag, r)
			logger.CtxError(ctx, "connector %s panicked: %v", tag, r)
		}
	}()

	key := sessionKey + ":" + string(tag)
	if d.breaker.IsOpen(key) {
		reason, _ := d.breaker.Reason(key)
		logger.With(logger.Fields{
			logger.FieldComponent: "dispatcher",
			logger.FieldSource:    string(tag),
			"reason":              reason,
		}).Warn(ctx, "skipping source, circuit open")
		out.err = errCircuitOpen
		return
	}
	if !d.limiter.Allow(string(tag)) {
		logger.With(logger.Fields{
			logger.FieldComponent: "dispatcher",
			logger.FieldSource:    string(tag),
		}).Warn(ctx, "skipping source, rate limit exhausted")
		out.err = source.ErrRateLimited
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	candidates, err := c.FetchProfiles(callCtx, hint)
	if err != nil {
		if errors.Is(err, source.ErrBlocked) {
			reason := "ban_signal"
			var blocked *source.BlockedError
			if errors.As(err, &blocked) && blocked.Reason != "" {
				reason = blocked.Reason
			}
			d.breaker.Trip(key, reason, d.cooldown)
			logger.With(logger.Fields{
				logger.FieldComponent: "dispatcher",
				logger.FieldSource:    string(tag),
				"reason":              reason,
			}).Warn(ctx, "ban signal detected, circuit tripped")
		} else {
			logger.CtxWarn(ctx, "source %s fetch failed: %v", tag, err)
		}
		out.err = err
		return
	}
	out.candidates = candidates
	return
}
