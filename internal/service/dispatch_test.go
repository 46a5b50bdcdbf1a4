package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

// fakeConnector implements source.Connector with scripted behavior. Call
// counts are safe to read once Dispatch has returned, since the gather
// barrier waits for every branch.
type fakeConnector struct {
	tag        domain.SourceTag
	candidates []domain.Candidate
	err        error
	panics     bool
	calls      int
}

func (f *fakeConnector) Tag() domain.SourceTag { return f.tag }
func (f *fakeConnector) DisplayName() string   { return string(f.tag) }

func (f *fakeConnector) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	f.calls++
	if f.panics {
		panic("scripted panic")
	}
	return f.candidates, f.err
}

func candidateFor(tag domain.SourceTag, name string) domain.Candidate {
	return domain.Candidate{DisplayName: name, URL: "https://example.com/" + name, Source: tag}
}

func newTestDispatcher(limits map[string]config.RateLimitConfig, connectors ...source.Connector) (*SourceDispatcher, *CircuitBreaker) {
	reg, err := source.NewRegistry(connectors...)
	if err != nil {
		panic(err)
	}
	breaker := NewCircuitBreaker()
	return NewSourceDispatcher(reg, NewRateLimiter(limits), breaker, time.Second, time.Hour), breaker
}

func TestDispatch_FailureIsolation(t *testing.T) {
	good := &fakeConnector{
		tag:        domain.SourceMicroblog,
		candidates: []domain.Candidate{candidateFor(domain.SourceMicroblog, "alex-chen")},
	}
	bad := &fakeConnector{tag: domain.SourceWebSearch, err: errors.New("upstream down")}
	d, _ := newTestDispatcher(nil, good, bad)

	res := d.Dispatch(context.Background(), "Alex Chen", "", []domain.SourceTag{domain.SourceMicroblog, domain.SourceWebSearch}, "sess")

	if len(res.SourcesQueried) != 2 {
		t.Fatalf("expected 2 queried sources, got %v", res.SourcesQueried)
	}
	if len(res.SourcesFailed) != 1 || res.SourcesFailed[0] != domain.SourceWebSearch {
		t.Errorf("expected web_search to fail, got %v", res.SourcesFailed)
	}
	if len(res.SourcesFound) != 1 || res.SourcesFound[0] != domain.SourceMicroblog {
		t.Errorf("expected microblog to be found, got %v", res.SourcesFound)
	}
	if res.TotalCandidates != 1 || len(res.Candidates) != 1 {
		t.Errorf("expected the successful source's candidate, got %d", res.TotalCandidates)
	}
}

func TestDispatch_PanicIsolation(t *testing.T) {
	panicky := &fakeConnector{tag: domain.SourceImageSocial, panics: true}
	good := &fakeConnector{
		tag:        domain.SourceDeveloperPlatform,
		candidates: []domain.Candidate{candidateFor(domain.SourceDeveloperPlatform, "alexchen")},
	}
	d, _ := newTestDispatcher(nil, panicky, good)

	res := d.Dispatch(context.Background(), "Alex Chen", "", []domain.SourceTag{domain.SourceImageSocial, domain.SourceDeveloperPlatform}, "sess")

	if len(res.SourcesFailed) != 1 || res.SourcesFailed[0] != domain.SourceImageSocial {
		t.Errorf("panicking source should count as failed, got %v", res.SourcesFailed)
	}
	if len(res.SourcesFound) != 1 || res.SourcesFound[0] != domain.SourceDeveloperPlatform {
		t.Errorf("healthy source should still be found, got %v", res.SourcesFound)
	}
}

func TestDispatch_EmptyResultCountsAsFailed(t *testing.T) {
	empty := &fakeConnector{tag: domain.SourceVideoPlatform}
	d, _ := newTestDispatcher(nil, empty)

	res := d.Dispatch(context.Background(), "Alex Chen", "", []domain.SourceTag{domain.SourceVideoPlatform}, "sess")

	if len(res.SourcesFound) != 0 {
		t.Errorf("empty result should not count as found, got %v", res.SourcesFound)
	}
	if len(res.SourcesFailed) != 1 {
		t.Errorf("empty result should count as failed, got %v", res.SourcesFailed)
	}
}

func TestDispatch_UnknownTagsDropped(t *testing.T) {
	good := &fakeConnector{
		tag:        domain.SourceMicroblog,
		candidates: []domain.Candidate{candidateFor(domain.SourceMicroblog, "alex-chen")},
	}
	d, _ := newTestDispatcher(nil, good)

	res := d.Dispatch(context.Background(), "Alex Chen", "", []domain.SourceTag{domain.SourceMicroblog, "fax_machine"}, "sess")

	if len(res.SourcesQueried) != 1 || res.SourcesQueried[0] != domain.SourceMicroblog {
		t.Errorf("unknown tags should be dropped from the query set, got %v", res.SourcesQueried)
	}
	if len(res.SourcesFailed) != 0 {
		t.Errorf("a dropped tag is not a failure, got %v", res.SourcesFailed)
	}
}

func TestDispatch_BanSignalTripsBreaker(t *testing.T) {
	blocked := &fakeConnector{
		tag: domain.SourceShortVideoSocial,
		err: &source.BlockedError{Reason: "captcha_challenge"},
	}
	d, breaker := newTestDispatcher(nil, blocked)
	enabled := []domain.SourceTag{domain.SourceShortVideoSocial}

	res := d.Dispatch(context.Background(), "Alex Chen", "", enabled, "sess")
	if len(res.SourcesFailed) != 1 {
		t.Fatalf("blocked source should count as failed, got %v", res.SourcesFailed)
	}
	if !breaker.IsOpen("sess:short_video_social") {
		t.Fatal("ban signal should trip the breaker for the session-scoped key")
	}

	// The next pass must short-circuit without touching the connector.
	res = d.Dispatch(context.Background(), "Alex Chen", "", enabled, "sess")
	if blocked.calls != 1 {
		t.Errorf("expected connector untouched while circuit open, got %d calls", blocked.calls)
	}
	if len(res.SourcesFailed) != 1 {
		t.Errorf("open circuit should count as failed, got %v", res.SourcesFailed)
	}

	// A different session key is not blocked.
	d.Dispatch(context.Background(), "Alex Chen", "", enabled, "other")
	if blocked.calls != 2 {
		t.Errorf("other sessions should still reach the connector, got %d calls", blocked.calls)
	}
}

func TestDispatch_RateLimitSkipsSource(t *testing.T) {
	good := &fakeConnector{
		tag:        domain.SourceMicroblog,
		candidates: []domain.Candidate{candidateFor(domain.SourceMicroblog, "alex-chen")},
	}
	limits := map[string]config.RateLimitConfig{
		"microblog": {Limit: 1, Window: time.Hour},
	}
	d, _ := newTestDispatcher(limits, good)
	enabled := []domain.SourceTag{domain.SourceMicroblog}

	first := d.Dispatch(context.Background(), "Alex Chen", "", enabled, "sess")
	if len(first.SourcesFound) != 1 {
		t.Fatalf("first pass should succeed, got %v", first.SourcesFound)
	}

	second := d.Dispatch(context.Background(), "Alex Chen", "", enabled, "sess")
	if good.calls != 1 {
		t.Errorf("budget-denied source should not be called, got %d calls", good.calls)
	}
	if len(second.SourcesFailed) != 1 {
		t.Errorf("budget denial should count as failed, got %v", second.SourcesFailed)
	}
}
