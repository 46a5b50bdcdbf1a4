package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/repository"
	"github.com/calebwren/rapport/internal/source"
	"github.com/calebwren/rapport/internal/source/developer"
	"github.com/calebwren/rapport/internal/source/emergingsocial"
	"github.com/calebwren/rapport/internal/source/imagesocial"
	"github.com/calebwren/rapport/internal/source/microblog"
	"github.com/calebwren/rapport/internal/source/professional"
	"github.com/calebwren/rapport/internal/source/shortvideo"
	"github.com/calebwren/rapport/internal/source/videoplatform"
	"github.com/calebwren/rapport/internal/source/websearch"
	"github.com/calebwren/rapport/internal/storage"
)

// ---- in-memory job store with the repository's guarded-update semantics ----

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*domain.Job{}}
}

// cloneJSONMap round-trips through JSON so stored stage data comes back as
// generic maps, exactly like a text column read through the real repository.
func cloneJSONMap(m domain.JSONMap) domain.JSONMap {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	var out domain.JSONMap
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func (s *memJobStore) snapshot(j *domain.Job) *domain.Job {
	c := *j
	c.InputData = cloneJSONMap(j.InputData)
	c.StageData = cloneJSONMap(j.StageData)
	c.Result = cloneJSONMap(j.Result)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s *memJobStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = s.snapshot(job)
	return nil
}

func (s *memJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.snapshot(job), nil
}

func (s *memJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, *s.snapshot(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memJobStore) listByStage(pred func(domain.Stage) bool, limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	type entry struct {
		id string
		at time.Time
	}
	var entries []entry
	for _, job := range s.jobs {
		if pred(job.Stage) {
			entries = append(entries, entry{job.ID, job.CreatedAt})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if len(ids) == limit {
			break
		}
		ids = append(ids, e.id)
	}
	return ids
}

func (s *memJobStore) ListPending(ctx context.Context, limit int) ([]string, error) {
	return s.listByStage(func(st domain.Stage) bool { return st == domain.StagePending }, limit), nil
}

func (s *memJobStore) ListInFlight(ctx context.Context, limit int) ([]string, error) {
	return s.listByStage(func(st domain.Stage) bool {
		return st != domain.StagePending && !st.IsTerminal()
	}, limit), nil
}

func (s *memJobStore) MarkStarted(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage != domain.StagePending {
		return false, nil
	}
	now := time.Now()
	job.Stage = stage
	job.Progress = progress
	job.StartedAt = &now
	return true, nil
}

func (s *memJobStore) AdvanceStage(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage.IsTerminal() || job.Progress > progress {
		return false, nil
	}
	job.Stage = stage
	job.Progress = progress
	return true, nil
}

func (s *memJobStore) SaveStageData(ctx context.Context, id string, data domain.JSONMap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage.IsTerminal() {
		return false, nil
	}
	job.StageData = cloneJSONMap(data)
	return true, nil
}

func (s *memJobStore) Complete(ctx context.Context, id string, result domain.JSONMap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	job.Stage = domain.StageSuccess
	job.Progress = 100
	job.Result = cloneJSONMap(result)
	job.CompletedAt = &now
	return true, nil
}

func (s *memJobStore) Fail(ctx context.Context, id string, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	job.Stage = domain.StageError
	job.ErrorMessage = message
	job.CompletedAt = &now
	return true, nil
}

func (s *memJobStore) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Stage.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	job.Stage = domain.StageCancelled
	job.CompletedAt = &now
	return true, nil
}

func (s *memJobStore) IncrementRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && !job.Stage.IsTerminal() {
		job.RetryCount++
	}
	return nil
}

// ---- other fakes ----

type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ storage.ObjectStorage = (*memObjectStorage)(nil)

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: map[string][]byte{}}
}

func (s *memObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return nil
}

func (s *memObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such object: " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memObjectStorage) GetURL(key string) string { return "mem://" + key }

func (s *memObjectStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

type fakeTranscriber struct {
	mu         sync.Mutex
	transcript *domain.Transcript
	failures   int
	delay      time.Duration
	calls      int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, diarize bool) (*domain.Transcript, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	delay := f.delay
	t := f.transcript
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("transcription backend unavailable")
	}
	out := *t
	return &out, nil
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// embedVocab maps interest tokens to vector slots. Tokens outside the
// vocabulary are ignored; every non-empty text also gets a small bias
// component so real text never embeds to exactly zero.
var embedVocab = map[string]int{
	"react":       0,
	"hiking":      1,
	"golang":      2,
	"photography": 3,
	"quantum":     4,
	"knitting":    5,
	"espresso":    6,
}

const embedDim = 8

type fakeEmbedder struct {
	fail bool
}

func (e *fakeEmbedder) Dimension() int { return embedDim }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	vec := make([]float32, embedDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if slot, ok := embedVocab[tok]; ok {
			vec[slot]++
		}
	}
	vec[embedDim-1] += 0.01
	return vec, nil
}

type personaPoint struct {
	pointID string
	userID  string
	label   string
	weight  float64
	vec     []float32
}

type unifiedPoint struct {
	pointID string
	userID  string
	jobID   string
	vec     []float32
}

type memVectorIndex struct {
	mu       sync.Mutex
	personas []personaPoint
	unified  []unifiedPoint
}

func cosineBetween(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *memVectorIndex) SearchPersonaNodes(ctx context.Context, userID string, vector []float32, topK int, threshold float32) ([]repository.PersonaHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []repository.PersonaHit
	for _, p := range m.personas {
		if p.userID != userID {
			continue
		}
		score := float32(cosineBetween(vector, p.vec))
		if score < threshold {
			continue
		}
		hits = append(hits, repository.PersonaHit{ID: p.pointID, Label: p.label, Weight: p.weight, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memVectorIndex) UpsertPersonaNode(ctx context.Context, pointID, userID, label string, weight float64, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas = append(m.personas, personaPoint{pointID, userID, label, weight, vector})
	return nil
}

func (m *memVectorIndex) UpsertUnified(ctx context.Context, pointID, userID, jobID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unified = append(m.unified, unifiedPoint{pointID, userID, jobID, vector})
	return nil
}

func (m *memVectorIndex) DeletePoints(ctx context.Context, pointIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range pointIDs {
		drop[id] = true
	}
	keep := m.personas[:0]
	for _, p := range m.personas {
		if !drop[p.pointID] {
			keep = append(keep, p)
		}
	}
	m.personas = keep
	return nil
}

func (m *memVectorIndex) HealthCheck(ctx context.Context) error { return nil }

func (m *memVectorIndex) unifiedPoints() []unifiedPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]unifiedPoint, len(m.unified))
	copy(out, m.unified)
	return out
}

type memConversationStore struct {
	mu   sync.Mutex
	rows []domain.Conversation
}

func (s *memConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *conv)
	return nil
}

func (s *memConversationStore) all() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, len(s.rows))
	copy(out, s.rows)
	return out
}

type memMetricStore struct {
	mu   sync.Mutex
	rows []domain.InteractionMetric
}

func (s *memMetricStore) Create(ctx context.Context, m *domain.InteractionMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *m)
	return nil
}

func (s *memMetricStore) all() []domain.InteractionMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.InteractionMetric, len(s.rows))
	copy(out, s.rows)
	return out
}

// ---- harness ----

type workflowHarness struct {
	store   *memJobStore
	objects *memObjectStorage
	trans   *fakeTranscriber
	embed   *fakeEmbedder
	index   *memVectorIndex
	convs   *memConversationStore
	metrics *memMetricStore
	jobs    *JobService
	engine  *Engine
}

// newWorkflowHarness wires a full engine around in-memory infrastructure.
// With no connectors given it registers the real sample adapters.
func newWorkflowHarness(t *testing.T, trans *fakeTranscriber, embed *fakeEmbedder, connectors ...source.Connector) *workflowHarness {
	t.Helper()

	if len(connectors) == 0 {
		connectors = []source.Connector{
			professional.NewAdapter(),
			developer.NewAdapter(),
			imagesocial.NewAdapter(),
			shortvideo.NewAdapter(),
			microblog.NewAdapter(),
			websearch.NewAdapter(),
			videoplatform.NewAdapter(),
			emergingsocial.NewAdapter(),
		}
	}
	registry, err := source.NewRegistry(connectors...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	dispatcher := NewSourceDispatcher(registry, NewRateLimiter(config.DefaultRateLimits()), NewCircuitBreaker(), 2*time.Second, time.Hour)
	resolver := NewIdentityResolver(&config.ResolverConfig{HighThreshold: 0.8, MediumThreshold: 0.6}, nil)
	fusion := NewVectorFusion(&config.FusionConfig{TranscriptWeight: 0.4, ProfessionalWeight: 0.4, PersonalityWeight: 0.2}, embedDim)
	index := &memVectorIndex{}
	synapses := NewSynapseService(index, &config.SynapseConfig{Threshold: 0.70, TopK: 3})
	outreach := NewOutreachService(nil)

	store := newMemJobStore()
	objects := newMemObjectStorage()
	convs := &memConversationStore{}
	metrics := &memMetricStore{}

	engine := NewEngine(store,
		&config.WorkflowConfig{Workers: 2, QueueSize: 16, PollInterval: 20 * time.Millisecond, StageTimeout: 5 * time.Second},
		&config.TranscriptionConfig{MaxRetries: 2, BackoffBase: 10 * time.Millisecond, BackoffCap: 50 * time.Millisecond},
		NewTranscriptionStage(objects, trans, embed, convs),
		NewEnrichmentStage(dispatcher, resolver, ""),
		NewSynthesisStage(embed, fusion, synapses, outreach, index, metrics),
	)

	jobs := NewJobService(store)
	jobs.SetEnqueuer(engine.Enqueue)
	jobs.SetInterrupter(engine.Interrupt)

	engine.Start()
	t.Cleanup(engine.Stop)

	return &workflowHarness{
		store:   store,
		objects: objects,
		trans:   trans,
		embed:   embed,
		index:   index,
		convs:   convs,
		metrics: metrics,
		jobs:    jobs,
		engine:  engine,
	}
}

func (h *workflowHarness) seedPersona(t *testing.T, userID, label string, weight float64) {
	t.Helper()
	vec, err := h.embed.Embed(context.Background(), label)
	if err != nil {
		t.Fatalf("embed persona %q: %v", label, err)
	}
	if err := h.index.UpsertPersonaNode(context.Background(), "persona-"+label, userID, label, weight, vec); err != nil {
		t.Fatalf("seed persona %q: %v", label, err)
	}
}

func (h *workflowHarness) submit(t *testing.T, in SubmitInput, audio []byte) *domain.Job {
	t.Helper()
	if err := h.objects.Upload(context.Background(), in.AudioKey, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg"); err != nil {
		t.Fatalf("upload audio: %v", err)
	}
	job, err := h.jobs.CreateJob(context.Background(), in)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func waitForTerminal(t *testing.T, store *memJobStore, id string, timeout time.Duration) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		job, err := store.GetByID(context.Background(), id)
		if err == nil && job.Stage.IsTerminal() {
			return job
		}
		if time.Now().After(deadline) {
			if err != nil {
				t.Fatalf("job %s never turned terminal: %v", id, err)
			}
			t.Fatalf("job %s never turned terminal, stuck at %s", id, job.Stage)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForStage(t *testing.T, store *memJobStore, id string, want domain.Stage, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		job, err := store.GetByID(context.Background(), id)
		if err == nil && job.Stage == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s", id, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func liveTranscript() *domain.Transcript {
	return &domain.Transcript{
		Text: "You been up to much lately? Mostly React and hiking these days. Nice.",
		Utterances: []domain.Utterance{
			{Speaker: 0, Text: "You been up to much lately?", Confidence: 0.97},
			{Speaker: 1, Text: "Mostly React and hiking these days.", Confidence: 0.95},
			{Speaker: 0, Text: "Nice.", Confidence: 0.98},
		},
		Entities: []domain.Entity{
			{Type: domain.EntityPerson, Value: "Alex Rivera"},
			{Type: domain.EntitySkill, Value: "React"},
			{Type: domain.EntityTopic, Value: "hiking"},
		},
		Diarized: true,
	}
}

// ---- end-to-end properties ----

func TestWorkflow_LiveConversationEndToEnd(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript()}
	embed := &fakeEmbedder{}
	h := newWorkflowHarness(t, trans, embed)

	h.seedPersona(t, "user-1", "React", 1.0)
	h.seedPersona(t, "user-1", "hiking", 0.8)
	h.seedPersona(t, "user-1", "quantum knitting", 0.5)

	job := h.submit(t, SubmitInput{
		UserID:      "user-1",
		Mode:        domain.ModeLive,
		Variant:     domain.VariantMultiSource,
		AudioKey:    "audio/live-1.mp3",
		ContactName: "Alex Rivera",
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("stage = %s (error %q), want SUCCESS", done.Stage, done.ErrorMessage)
	}
	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100", done.Progress)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("expected StartedAt and CompletedAt to be set")
	}

	res := done.Result
	if res["resolution_status"] != ResolutionHighConfidence {
		t.Errorf("resolution_status = %v, want %s", res["resolution_status"], ResolutionHighConfidence)
	}
	top, ok := res["top_candidate"].(map[string]interface{})
	if !ok {
		t.Fatalf("top_candidate missing from result: %v", res["top_candidate"])
	}
	if top["display_name"] != "Alex Rivera" {
		t.Errorf("top candidate = %v, want Alex Rivera", top["display_name"])
	}
	if top["source"] != string(domain.SourceProfessionalNetwork) {
		t.Errorf("top candidate source = %v, want %s", top["source"], domain.SourceProfessionalNetwork)
	}

	synapses, ok := res["synapses"].([]interface{})
	if !ok {
		t.Fatalf("synapses missing from result: %v", res["synapses"])
	}
	if len(synapses) != 2 {
		t.Fatalf("got %d synapses, want 2 (React, hiking): %v", len(synapses), synapses)
	}
	labels := map[string]bool{}
	for _, raw := range synapses {
		m := raw.(map[string]interface{})
		labels[m["label"].(string)] = true
		if sim := m["similarity"].(float64); sim < 0.70 {
			t.Errorf("synapse %v similarity %.4f below threshold", m["label"], sim)
		}
	}
	if !labels["React"] || !labels["hiking"] {
		t.Errorf("synapse labels = %v, want React and hiking", labels)
	}

	if degraded, _ := res["degraded"].(bool); degraded {
		t.Error("result marked degraded on the happy path")
	}
	if n := res["pii_detected"].(float64); n != 0 {
		t.Errorf("pii_detected = %v, want 0", n)
	}
	if res["draft_message"] != nil {
		t.Errorf("draft_message = %v, want nil with chat disabled", res["draft_message"])
	}

	unified := res["unified_embedding"].(map[string]interface{})
	weights := unified["weights"].(map[string]interface{})
	if len(weights) != 3 {
		t.Errorf("unified weights = %v, want transcript+professional+personality", weights)
	}
	var sum float64
	for _, w := range weights {
		sum += w.(float64)
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("unified weights sum = %v, want 1.0", sum)
	}
	if deg, _ := unified["degraded"].(bool); deg {
		t.Error("unified embedding marked degraded")
	}

	dispatch := res["dispatch"].(map[string]interface{})
	if found := dispatch["sources_found"].([]interface{}); len(found) != 8 {
		t.Errorf("sources_found = %v, want all 8 sources", found)
	}
	if failed := dispatch["sources_failed"].([]interface{}); len(failed) != 0 {
		t.Errorf("sources_failed = %v, want none", failed)
	}

	quadrant := res["social_quadrant"].(map[string]interface{})
	if pt, _ := quadrant["profile_type"].(string); pt == "" || pt == "balanced" {
		t.Errorf("profile_type = %q, want a real read with sources found", pt)
	}

	convs := h.convs.all()
	if len(convs) != 1 {
		t.Fatalf("got %d conversation rows, want 1", len(convs))
	}
	if convs[0].Interests != "Mostly React and hiking these days." {
		t.Errorf("conversation interests = %q", convs[0].Interests)
	}
	if convs[0].JobID != job.ID {
		t.Errorf("conversation job id = %q, want %q", convs[0].JobID, job.ID)
	}

	metrics := h.metrics.all()
	if len(metrics) != 1 {
		t.Fatalf("got %d metric rows, want 1", len(metrics))
	}
	m := metrics[0]
	if m.SynapseCount != 2 || m.SourcesFound != 8 || m.Degraded {
		t.Errorf("metric = %+v, want 2 synapses, 8 sources, not degraded", m)
	}
	if math.Abs(m.TopSynapseSimilarity-1/math.Sqrt2) > 0.01 {
		t.Errorf("top synapse similarity = %.4f, want about %.4f", m.TopSynapseSimilarity, 1/math.Sqrt2)
	}

	points := h.index.unifiedPoints()
	if len(points) != 1 || points[0].jobID != job.ID {
		t.Errorf("unified points = %+v, want one for job %s", points, job.ID)
	}
}

func TestWorkflow_RecapConversationMatchesPersona(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript()}
	embed := &fakeEmbedder{}
	h := newWorkflowHarness(t, trans, embed)

	h.seedPersona(t, "user-8", "React", 1.0)

	job := h.submit(t, SubmitInput{
		UserID:   "user-8",
		Mode:     domain.ModeRecap,
		Variant:  domain.VariantMultiSource,
		AudioKey: "audio/recap-1.mp3",
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("stage = %s (error %q), want SUCCESS", done.Stage, done.ErrorMessage)
	}

	synapses, ok := done.Result["synapses"].([]interface{})
	if !ok || len(synapses) == 0 {
		t.Fatalf("synapses = %v, want a React match", done.Result["synapses"])
	}
	first := synapses[0].(map[string]interface{})
	if first["label"] != "React" {
		t.Errorf("top synapse label = %v, want React", first["label"])
	}
	if sim := first["similarity"].(float64); sim < 0.70 {
		t.Errorf("top synapse similarity = %.4f, want >= 0.70", sim)
	}

	// Recap extraction works from entities, not speaker turns.
	convs := h.convs.all()
	if len(convs) != 1 {
		t.Fatalf("got %d conversation rows, want 1", len(convs))
	}
	if convs[0].Interests != "Alex Rivera React hiking" {
		t.Errorf("conversation interests = %q, want entity bag", convs[0].Interests)
	}
	if convs[0].Mode != domain.ModeRecap {
		t.Errorf("conversation mode = %q, want recap", convs[0].Mode)
	}
}

func TestWorkflow_AllEnrichmentFailuresStillSucceed(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript()}
	embed := &fakeEmbedder{fail: true}
	h := newWorkflowHarness(t, trans, embed,
		&fakeConnector{tag: domain.SourceProfessionalNetwork, err: errors.New("upstream 500")},
		&fakeConnector{tag: domain.SourceMicroblog, err: errors.New("upstream 500")},
	)

	job := h.submit(t, SubmitInput{
		UserID:      "user-2",
		Mode:        domain.ModeLive,
		Variant:     domain.VariantMultiSource,
		AudioKey:    "audio/degraded-1.mp3",
		ContactName: "Alex Rivera",
		EnabledSources: []domain.SourceTag{
			domain.SourceProfessionalNetwork,
			domain.SourceMicroblog,
		},
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("stage = %s (error %q), want SUCCESS despite enrichment failures", done.Stage, done.ErrorMessage)
	}

	res := done.Result
	if degraded, _ := res["degraded"].(bool); !degraded {
		t.Error("result not marked degraded with every source down")
	}
	if res["resolution_status"] != ResolutionNoCandidates {
		t.Errorf("resolution_status = %v, want %s", res["resolution_status"], ResolutionNoCandidates)
	}
	if res["top_candidate"] != nil {
		t.Errorf("top_candidate = %v, want nil", res["top_candidate"])
	}
	if synapses := res["synapses"].([]interface{}); len(synapses) != 0 {
		t.Errorf("synapses = %v, want none with embeddings down", synapses)
	}
	if res["draft_message"] != nil {
		t.Errorf("draft_message = %v, want nil", res["draft_message"])
	}

	unified := res["unified_embedding"].(map[string]interface{})
	if deg, _ := unified["degraded"].(bool); !deg {
		t.Error("unified embedding not marked degraded with all inputs missing")
	}

	dispatch := res["dispatch"].(map[string]interface{})
	if failed := dispatch["sources_failed"].([]interface{}); len(failed) != 2 {
		t.Errorf("sources_failed = %v, want both sources", failed)
	}
	if found := dispatch["sources_found"].([]interface{}); len(found) != 0 {
		t.Errorf("sources_found = %v, want none", found)
	}

	if points := h.index.unifiedPoints(); len(points) != 0 {
		t.Errorf("degraded zero vector was indexed: %+v", points)
	}
	metrics := h.metrics.all()
	if len(metrics) != 1 || !metrics[0].Degraded {
		t.Errorf("metrics = %+v, want one degraded row", metrics)
	}
}

func TestWorkflow_TranscriptionRetriesThenSucceeds(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript(), failures: 2}
	h := newWorkflowHarness(t, trans, &fakeEmbedder{})

	job := h.submit(t, SubmitInput{
		UserID:   "user-3",
		Mode:     domain.ModeRecap,
		Variant:  domain.VariantBasic,
		AudioKey: "audio/retry-1.mp3",
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("stage = %s (error %q), want SUCCESS after retries", done.Stage, done.ErrorMessage)
	}
	if got := trans.Calls(); got != 3 {
		t.Errorf("transcriber called %d times, want 3 (two failures, one success)", got)
	}
	if done.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", done.RetryCount)
	}
}

func TestWorkflow_TranscriptionExhaustsRetries(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript(), failures: 100}
	h := newWorkflowHarness(t, trans, &fakeEmbedder{})

	job := h.submit(t, SubmitInput{
		UserID:   "user-4",
		Mode:     domain.ModeRecap,
		Variant:  domain.VariantBasic,
		AudioKey: "audio/retry-2.mp3",
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageError {
		t.Fatalf("stage = %s, want ERROR after exhausting retries", done.Stage)
	}
	if !strings.Contains(done.ErrorMessage, "3 attempts") {
		t.Errorf("error message = %q, want attempt count", done.ErrorMessage)
	}
	if done.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", done.RetryCount)
	}
	if done.CompletedAt == nil {
		t.Error("expected CompletedAt on failed job")
	}
}

func TestWorkflow_CancelIsIdempotentAndFinal(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript(), delay: 3 * time.Second}
	h := newWorkflowHarness(t, trans, &fakeEmbedder{})

	job := h.submit(t, SubmitInput{
		UserID:   "user-5",
		Mode:     domain.ModeLive,
		AudioKey: "audio/cancel-1.mp3",
	}, []byte("fake audio bytes"))

	waitForStage(t, h.store, job.ID, domain.StageTranscription, 5*time.Second)

	cancelled, err := h.jobs.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Stage != domain.StageCancelled {
		t.Fatalf("stage after cancel = %s, want CANCELLED", cancelled.Stage)
	}

	again, err := h.jobs.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Stage != domain.StageCancelled {
		t.Errorf("stage after second cancel = %s, want CANCELLED", again.Stage)
	}

	// The interrupted worker must abandon its stage result rather than
	// resurrect the job.
	time.Sleep(200 * time.Millisecond)
	final, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if final.Stage != domain.StageCancelled {
		t.Errorf("stage settled at %s, want CANCELLED", final.Stage)
	}
	if final.CompletedAt == nil {
		t.Error("expected CompletedAt on cancelled job")
	}
	if got := trans.Calls(); got != 1 {
		t.Errorf("transcriber called %d times after cancel, want 1", got)
	}
}

func TestWorkflow_CancelUnknownJob(t *testing.T) {
	h := newWorkflowHarness(t, &fakeTranscriber{transcript: liveTranscript()}, &fakeEmbedder{})
	if _, err := h.jobs.CancelJob(context.Background(), "no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("cancel unknown job error = %v, want ErrJobNotFound", err)
	}
}

func TestWorkflow_BasicVariantSkipsEnrichment(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript()}
	h := newWorkflowHarness(t, trans, &fakeEmbedder{})

	job := h.submit(t, SubmitInput{
		UserID:   "user-6",
		Mode:     domain.ModeRecap,
		Variant:  domain.VariantBasic,
		AudioKey: "audio/basic-1.mp3",
	}, []byte("fake audio bytes"))

	done := waitForTerminal(t, h.store, job.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("stage = %s (error %q), want SUCCESS", done.Stage, done.ErrorMessage)
	}
	if _, ran := done.StageData["dispatch"]; ran {
		t.Error("basic variant ran the enrichment stage")
	}
	if done.Result["dispatch"] != nil {
		t.Errorf("result dispatch = %v, want nil for basic variant", done.Result["dispatch"])
	}
	if done.Result["resolution_status"] != ResolutionNoCandidates {
		t.Errorf("resolution_status = %v, want %s", done.Result["resolution_status"], ResolutionNoCandidates)
	}
	if len(h.convs.all()) != 1 {
		t.Error("expected a conversation row from the basic variant")
	}
}

func TestWorkflow_PollRecoversUnenqueuedJob(t *testing.T) {
	trans := &fakeTranscriber{transcript: liveTranscript()}
	h := newWorkflowHarness(t, trans, &fakeEmbedder{})

	// Simulate a job submitted by a process that died before enqueueing:
	// the row exists in PENDING but no worker was told about it.
	if err := h.objects.Upload(context.Background(), "audio/orphan-1.mp3", bytes.NewReader([]byte("fake audio")), 10, "audio/mpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	orphan := &domain.Job{
		ID:      "orphan-1",
		UserID:  "user-7",
		Variant: domain.VariantBasic,
		Stage:   domain.StagePending,
		InputData: domain.JSONMap{
			"audio_key": "audio/orphan-1.mp3",
			"mode":      string(domain.ModeRecap),
		},
		StageData: domain.JSONMap{},
	}
	if err := h.store.Create(context.Background(), orphan); err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	done := waitForTerminal(t, h.store, orphan.ID, 15*time.Second)
	if done.Stage != domain.StageSuccess {
		t.Fatalf("orphan stage = %s (error %q), want SUCCESS via poll recovery", done.Stage, done.ErrorMessage)
	}
}
