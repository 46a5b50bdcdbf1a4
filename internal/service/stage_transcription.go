package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
	"github.com/calebwren/rapport/internal/storage"
)

// ConversationStore persists the durable conversation record produced by
// transcription.
type ConversationStore interface {
	Create(ctx context.Context, conv *domain.Conversation) error
}

// TranscriptionStage turns uploaded audio into a transcript, extracts
// conversational interests and embeds them. It is the only stage with a
// retry policy: its errors bubble up so the engine can back off and rerun.
type TranscriptionStage struct {
	objects       storage.ObjectStorage
	transcriber   Transcriber
	embedder      Embedder
	conversations ConversationStore
}

// NewTranscriptionStage creates the transcription stage handler.
func NewTranscriptionStage(objects storage.ObjectStorage, transcriber Transcriber, embedder Embedder, conversations ConversationStore) *TranscriptionStage {
	return &TranscriptionStage{
		objects:       objects,
		transcriber:   transcriber,
		embedder:      embedder,
		conversations: conversations,
	}
}

func (s *TranscriptionStage) Stage() domain.Stage {
	return domain.StageTranscription
}

func (s *TranscriptionStage) Run(ctx context.Context, f *Flow) (domain.Stage, error) {
	in, err := f.Input()
	if err != nil {
		return "", err
	}

	rc, err := s.objects.Download(ctx, in.AudioKey)
	if err != nil {
		return "", fmt.Errorf("audio download: %w", err)
	}
	audio, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("audio read: %w", err)
	}

	// Live mode needs speaker turns to isolate the other party; recap is a
	// monologue and skips diarization.
	diarize := in.Mode == domain.ModeLive
	start := time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, audio, diarize)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"diarized":             transcript.Diarized,
		"entities":             len(transcript.Entities),
	}).Info(ctx, "audio transcribed")

	interests := ExtractInterests(transcript, in.Mode)
	vector := EmbedOrZero(ctx, s.embedder, interests)

	conv := &domain.Conversation{
		ID:         uuid.NewString(),
		UserID:     f.Job.UserID,
		JobID:      f.Job.ID,
		Mode:       in.Mode,
		Transcript: transcript.Text,
		Interests:  interests,
		AudioKey:   in.AudioKey,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		// The transcript also lives in stage data; losing the side row is
		// not worth failing the job.
		logger.CtxWarn(ctx, "failed to persist conversation: %v", err)
		conv.ID = ""
	}

	f.Data["transcript"] = transcript
	f.Data["interests"] = interests
	f.Data["interests_vector"] = vector
	if conv.ID != "" {
		f.Data["conversation_id"] = conv.ID
	}

	if f.Job.Variant == domain.VariantBasic {
		return domain.StageSynthesis, nil
	}
	return domain.StageEnrichment, nil
}
