package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/viaifoundation/ttsgate/internal/server/admission"
	"github.com/viaifoundation/ttsgate/internal/server/challenge"
	"github.com/viaifoundation/ttsgate/internal/server/config"
	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/repomanager"
	"github.com/viaifoundation/ttsgate/internal/server/storage"
	"github.com/viaifoundation/ttsgate/internal/server/tts"
	"golang.org/x/sync/semaphore"
)

// SynthesisService runs gated text-to-speech generation. At most workers
// engine calls run at once; callers beyond that wait for a slot within the
// same timeout that bounds the call itself.
type SynthesisService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	challenge   challenge.Verifier
	synthesizer tts.Synthesizer
	voices      tts.Voices
	store       storage.Store
	sem         *semaphore.Weighted
	timeout     time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewSynthesisService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	verifier challenge.Verifier, synthesizer tts.Synthesizer, store storage.Store, log logging.Logger) *SynthesisService {
	workers := cfg.SynthesisWorkers
	if workers < 1 {
		workers = 1
	}
	return &SynthesisService{
		db:          db,
		repomanager: m,
		challenge:   verifier,
		synthesizer: synthesizer,
		voices:      tts.Voices(cfg.Voices),
		store:       store,
		sem:         semaphore.NewWeighted(int64(workers)),
		timeout:     cfg.SynthesisTimeout,
		log:         log,
		now:         time.Now,
	}
}

// JoinParagraphs concatenates paragraph texts in order, one per line, and
// returns the input size in characters (newlines not counted).
func JoinParagraphs(paragraphs []string) (string, int) {
	size := 0
	for _, p := range paragraphs {
		size += utf8.RuneCountInString(p)
	}
	return strings.Join(paragraphs, "\n"), size
}

// Synthesize generates audio for identity and returns its URL.
//
// Once the challenge and admission checks pass, exactly one GenerationRecord
// is written and the usage counter is touched, whatever the outcome.
func (s *SynthesisService) Synthesize(ctx context.Context, identity *models.Identity, language string, paragraphs []string, proof string) (url string, err error) {
	if err := checkChallenge(ctx, s.challenge, proof); err != nil {
		return "", err
	}
	if !admission.CanUsePrivilegedResource(identity) {
		return "", common.ErrNotAdmitted
	}

	text, size := JoinParagraphs(paragraphs)
	start := s.now()
	record := &models.GenerationRecord{
		Email:         identity.Email,
		InputTextSize: size,
		Status:        models.GenerationFailure,
	}

	defer func() {
		record.ProcessingTime = s.now().Sub(start)
		if err == nil {
			record.Status = models.GenerationSuccess
		}
		s.audit(context.WithoutCancel(ctx), record)
	}()

	voice, err := s.voices.Voice(language)
	if err != nil {
		return "", err
	}

	audio, key, url, err := s.generate(ctx, text, voice, start)
	if err != nil {
		s.log.Error(ctx, "audio generation failed", "email", identity.Email, "language", language,
			"timeout", errors.Is(err, context.DeadlineExceeded), "error", err)
		return "", fmt.Errorf("%w: %w", common.ErrSynthesisFailed, err)
	}

	record.MP3FileSize = int64(len(audio))
	record.OutputFile = key

	s.log.Info(ctx, "audio generated", "email", identity.Email, "key", key, "bytes", len(audio))
	return url, nil
}

func (s *SynthesisService) generate(ctx context.Context, text, voice string, at time.Time) ([]byte, string, string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, "", "", fmt.Errorf("waiting for synthesis slot: %w", err)
	}
	audio, err := s.synthesizer.Synthesize(ctx, text, voice)
	s.sem.Release(1)
	if err != nil {
		return nil, "", "", err
	}

	key, err := storage.NewAudioKey(at)
	if err != nil {
		return nil, "", "", err
	}

	url, err := s.store.Put(ctx, key, audio)
	if err != nil {
		return nil, "", "", fmt.Errorf("store audio: %w", err)
	}

	return audio, key, url, nil
}

// audit writes the generation record and the usage touch together. Failures
// are logged; the caller's result stands.
func (s *SynthesisService) audit(ctx context.Context, record *models.GenerationRecord) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Generations(tx).Create(ctx, record); err != nil {
			return err
		}
		_, err := s.repomanager.Usage(tx).Touch(ctx, record.Email, common.EndpointGenerateAudio)
		return err
	})
	if err != nil {
		s.log.Error(ctx, "generation audit not recorded", "email", record.Email, "status", record.Status, "error", err)
	}
}
