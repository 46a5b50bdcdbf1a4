package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// Progress checkpoints attached at stage transitions. Values are for UI
// polling and only have to be monotonic, not exact.
var (
	stageStartProgress = map[domain.Stage]int{
		domain.StageTranscription: 10,
		domain.StageEnrichment:    40,
		domain.StageSynthesis:     70,
	}
	stageDoneProgress = map[domain.Stage]int{
		domain.StageTranscription: 35,
		domain.StageEnrichment:    65,
	}
)

// JobInput is the submission payload carried in Job.InputData.
type JobInput struct {
	AudioKey       string      `json:"audio_key"`
	Mode           domain.Mode `json:"mode"`
	ContactName    string      `json:"contact_name,omitempty"`
	EnabledSources []string    `json:"enabled_sources,omitempty"`
}

// Flow carries one job through a stage execution: the row as loaded, the
// accumulating stage record, and the final result once synthesis builds it.
// Handlers extend Data, they never drop earlier keys.
type Flow struct {
	Job    *domain.Job
	Data   domain.JSONMap
	Result domain.JSONMap
}

// Input decodes the submission payload.
func (f *Flow) Input() (*JobInput, error) {
	var in JobInput
	if err := decodeValue(map[string]interface{}(f.Job.InputData), &in); err != nil {
		return nil, fmt.Errorf("malformed job input: %w", err)
	}
	if in.Mode == "" {
		in.Mode = domain.ModeRecap
	}
	return &in, nil
}

// Transcript returns the transcript attached by the transcription stage,
// or nil.
func (f *Flow) Transcript() *domain.Transcript {
	raw, ok := f.Data["transcript"]
	if !ok {
		return nil
	}
	var t domain.Transcript
	if err := decodeValue(raw, &t); err != nil {
		logger.Warn("undecodable transcript in stage data: %v", err)
		return nil
	}
	return &t
}

// Interests returns the extracted interest string, possibly empty.
func (f *Flow) Interests() string {
	s, _ := f.Data["interests"].(string)
	return s
}

// InterestsVector returns the interest embedding, or nil.
func (f *Flow) InterestsVector() []float32 {
	raw, ok := f.Data["interests_vector"]
	if !ok {
		return nil
	}
	var vec []float32
	if err := decodeValue(raw, &vec); err != nil {
		logger.Warn("undecodable interest vector in stage data: %v", err)
		return nil
	}
	return vec
}

// Dispatch returns the enrichment stage's dispatch outcome, or nil for
// basic-variant jobs.
func (f *Flow) Dispatch() *DispatchResult {
	raw, ok := f.Data["dispatch"]
	if !ok {
		return nil
	}
	var dr DispatchResult
	if err := decodeValue(raw, &dr); err != nil {
		logger.Warn("undecodable dispatch result in stage data: %v", err)
		return nil
	}
	return &dr
}

// Resolution returns the enrichment stage's identity resolution, or nil.
func (f *Flow) Resolution() *Resolution {
	raw, ok := f.Data["resolution"]
	if !ok {
		return nil
	}
	var r Resolution
	if err := decodeValue(raw, &r); err != nil {
		logger.Warn("undecodable resolution in stage data: %v", err)
		return nil
	}
	return &r
}

// decodeValue converts a stage-data value into a typed struct via a JSON
// round trip. Values arrive either as live structs (same process) or as
// generic maps (reloaded from the store); both decode the same way.
func decodeValue(raw, target interface{}) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

// stageHandler executes exactly one stage of a job and names the stage that
// follows it.
type stageHandler interface {
	Stage() domain.Stage
	Run(ctx context.Context, f *Flow) (domain.Stage, error)
}

// Engine is the workflow orchestrator: a buffered in-process queue of job
// IDs, a DB poll loop that claims submitted and orphaned work, and a pool
// of workers that each execute one stage per claim and re-enqueue the job.
type Engine struct {
	store        JobStore
	handlers     map[domain.Stage]stageHandler
	queue        chan string
	workers      int
	pollInterval time.Duration
	stageTimeout time.Duration

	retryMax  int
	retryBase time.Duration
	retryCap  time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	deferred map[string]time.Time

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine assembles the orchestrator from its stage handlers.
func NewEngine(store JobStore, wcfg *config.WorkflowConfig, tcfg *config.TranscriptionConfig, handlers ...stageHandler) *Engine {
	e := &Engine{
		store:        store,
		handlers:     make(map[domain.Stage]stageHandler, len(handlers)),
		workers:      4,
		pollInterval: 3 * time.Second,
		stageTimeout: 5 * time.Minute,
		retryMax:     5,
		retryBase:    2 * time.Second,
		retryCap:     10 * time.Minute,
		inflight:     make(map[string]context.CancelFunc),
		deferred:     make(map[string]time.Time),
	}
	queueSize := 64
	if wcfg != nil {
		if wcfg.Workers > 0 {
			e.workers = wcfg.Workers
		}
		if wcfg.QueueSize > 0 {
			queueSize = wcfg.QueueSize
		}
		if wcfg.PollInterval > 0 {
			e.pollInterval = wcfg.PollInterval
		}
		if wcfg.StageTimeout > 0 {
			e.stageTimeout = wcfg.StageTimeout
		}
	}
	if tcfg != nil {
		if tcfg.MaxRetries >= 0 {
			e.retryMax = tcfg.MaxRetries
		}
		if tcfg.BackoffBase > 0 {
			e.retryBase = tcfg.BackoffBase
		}
		if tcfg.BackoffCap > 0 {
			e.retryCap = tcfg.BackoffCap
		}
	}
	e.queue = make(chan string, queueSize)
	for _, h := range handlers {
		e.handlers[h.Stage()] = h
	}
	return e
}

// Start launches the worker pool and the poll loop.
func (e *Engine) Start() {
	e.rootCtx, e.stop = context.WithCancel(context.Background())
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.workerLoop(i)
	}
	e.wg.Add(1)
	go e.pollLoop()
	logger.With(logger.Fields{
		logger.FieldComponent: "engine",
		"workers":             e.workers,
	}).Info(nil, "workflow engine started")
}

// Stop cancels all in-flight work and waits for the pool to drain.
// Interrupted jobs stay non-terminal and are resumed on the next start.
func (e *Engine) Stop() {
	if e.stop == nil {
		return
	}
	e.stop()
	e.wg.Wait()
	logger.With(logger.Fields{logger.FieldComponent: "engine"}).Info(nil, "workflow engine stopped")
}

// Enqueue offers a job to the queue without blocking. A full queue is not
// an error: the poll loop will find the job again.
func (e *Engine) Enqueue(jobID string) {
	select {
	case e.queue <- jobID:
	default:
		logger.Debug("queue full, job %s left for the poll loop", jobID)
	}
}

// Interrupt cancels the context of a job's in-flight stage, if any. The row
// must already be terminal: interrupted workers abandon their commit because
// the guarded update no longer matches.
func (e *Engine) Interrupt(jobID string) {
	e.mu.Lock()
	cancel, ok := e.inflight[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) workerLoop(n int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.rootCtx.Done():
			return
		case id := <-e.queue:
			e.runJob(id)
		}
	}
}

// pollLoop claims PENDING jobs on a timer. At startup it additionally
// re-enqueues jobs found mid-pipeline, which recovers work orphaned by a
// previous process.
func (e *Engine) pollLoop() {
	defer e.wg.Done()
	e.pollOnce(true)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.rootCtx.Done():
			return
		case <-ticker.C:
			e.pollOnce(true)
		}
	}
}

func (e *Engine) pollOnce(includeInFlight bool) {
	ids, err := e.store.ListPending(e.rootCtx, cap(e.queue))
	if err != nil {
		logger.Warn("pending poll failed: %v", err)
		return
	}
	if includeInFlight {
		more, err := e.store.ListInFlight(e.rootCtx, cap(e.queue))
		if err != nil {
			logger.Warn("in-flight poll failed: %v", err)
		} else {
			ids = append(ids, more...)
		}
	}

	now := time.Now()
	for _, id := range ids {
		e.mu.Lock()
		_, running := e.inflight[id]
		until, waiting := e.deferred[id]
		e.mu.Unlock()
		if running || (waiting && now.Before(until)) {
			continue
		}
		e.Enqueue(id)
	}
}

// runJob claims a job, executes its current stage and commits the outcome.
// A job already claimed by another worker is skipped; the queue may carry
// duplicates.
func (e *Engine) runJob(id string) {
	e.mu.Lock()
	if _, running := e.inflight[id]; running {
		e.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(e.rootCtx)
	e.inflight[id] = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.inflight, id)
		e.mu.Unlock()
	}()

	ctx := logger.SetJobID(jobCtx, id)

	job, err := e.store.GetByID(ctx, id)
	if err != nil {
		logger.CtxWarn(ctx, "failed to load job: %v", err)
		return
	}
	if job.Stage.IsTerminal() {
		return
	}

	stage := job.Stage
	if stage == domain.StagePending {
		stage = domain.StageTranscription
		ok, err := e.store.MarkStarted(ctx, id, stage, stageStartProgress[stage])
		if err != nil {
			logger.CtxWarn(ctx, "failed to start job: %v", err)
			return
		}
		if !ok {
			// Another worker started it, or it was cancelled first.
			return
		}
		job.Stage = stage
	}
	ctx = logger.SetStage(ctx, string(stage))

	handler, ok := e.handlers[stage]
	if !ok {
		logger.CtxError(ctx, "no handler for stage %s", stage)
		if _, err := e.store.Fail(ctx, id, "internal error: unhandled stage "+string(stage)); err != nil {
			logger.CtxError(ctx, "failed to mark job failed: %v", err)
		}
		return
	}

	flow := &Flow{Job: job, Data: job.StageData}
	if flow.Data == nil {
		flow.Data = domain.JSONMap{}
	}

	start := time.Now()
	next, runErr := e.runStage(ctx, handler, flow)
	elapsed := time.Since(start).Milliseconds()

	if runErr != nil {
		if jobCtx.Err() != nil {
			// Interrupted: either the job was cancelled (row already
			// terminal) or the engine is shutting down (row stays
			// non-terminal and is resumed on restart). Commit nothing.
			logger.With(logger.Fields{logger.FieldDurationMs: elapsed}).Info(ctx, "stage interrupted, result abandoned")
			return
		}
		e.handleStageFailure(ctx, job, stage, runErr)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed,
		logger.FieldStatus:     "ok",
	}).Info(ctx, "stage %s finished", stage)

	if ok, err := e.store.SaveStageData(ctx, id, flow.Data); err != nil {
		logger.CtxError(ctx, "failed to save stage data: %v", err)
		return
	} else if !ok {
		logger.CtxInfo(ctx, "job turned terminal mid-stage, result abandoned")
		return
	}

	if next == domain.StageSuccess {
		if ok, err := e.store.Complete(ctx, id, flow.Result); err != nil {
			logger.CtxError(ctx, "failed to complete job: %v", err)
		} else if !ok {
			logger.CtxInfo(ctx, "job turned terminal before completion, result abandoned")
		}
		return
	}

	if doneP, hasDone := stageDoneProgress[stage]; hasDone {
		if ok, err := e.store.AdvanceStage(ctx, id, stage, doneP); err != nil || !ok {
			if err != nil {
				logger.CtxError(ctx, "failed to record stage completion: %v", err)
			}
			return
		}
	}
	if ok, err := e.store.AdvanceStage(ctx, id, next, stageStartProgress[next]); err != nil || !ok {
		if err != nil {
			logger.CtxError(ctx, "failed to advance stage: %v", err)
		}
		return
	}
	e.Enqueue(id)
}

// runStage invokes the handler with the stage timeout applied and panics
// contained.
func (e *Engine) runStage(ctx context.Context, handler stageHandler, flow *Flow) (next domain.Stage, err error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", handler.Stage(), r)
		}
	}()
	return handler.Run(stageCtx, flow)
}

// handleStageFailure applies the retry policy: transcription retries with
// capped exponential backoff, everything else is fatal for the job. The
// enrichment stages degrade internally and only surface unexpected errors.
func (e *Engine) handleStageFailure(ctx context.Context, job *domain.Job, stage domain.Stage, runErr error) {
	if stage == domain.StageTranscription && job.RetryCount < e.retryMax {
		if err := e.store.IncrementRetry(ctx, job.ID); err != nil {
			logger.CtxError(ctx, "failed to record retry: %v", err)
		}
		delay := RetryDelay(job.RetryCount, e.retryBase, e.retryCap)
		logger.With(logger.Fields{
			"attempt": job.RetryCount + 1,
			"delay":   delay.String(),
		}).Warn(ctx, "transcription failed, retrying: %v", runErr)

		e.mu.Lock()
		e.deferred[job.ID] = time.Now().Add(delay)
		e.mu.Unlock()
		time.AfterFunc(delay, func() {
			e.mu.Lock()
			delete(e.deferred, job.ID)
			e.mu.Unlock()
			e.Enqueue(job.ID)
		})
		return
	}

	msg := fmt.Sprintf("%s failed: %v", stage, runErr)
	if stage == domain.StageTranscription {
		msg = fmt.Sprintf("transcription failed after %d attempts: %v", job.RetryCount+1, runErr)
	}
	logger.CtxError(ctx, "job failed: %s", msg)
	if _, err := e.store.Fail(ctx, job.ID, msg); err != nil {
		logger.CtxError(ctx, "failed to mark job failed: %v", err)
	}
}
