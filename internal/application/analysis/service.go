package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/biosight/internal/application"
	domain "github.com/bryanwahyu/biosight/internal/domain/analysis"
	"github.com/bryanwahyu/biosight/internal/domain/audit"
	"github.com/bryanwahyu/biosight/internal/domain/inference"
	"github.com/bryanwahyu/biosight/internal/domain/session"
	"github.com/bryanwahyu/biosight/internal/domain/specimen"
)

const (
	DefaultCooldown = 10 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// ConsentChecker is satisfied by the consent service.
type ConsentChecker interface {
	CheckStatus(ctx context.Context, st *session.State) bool
}

// Service implements the analysis pipeline: validate, store, infer, seal,
// persist. Records and Audit may be nil when no database is configured.
type Service struct {
	Images    domain.ImageStore
	Inference inference.Client
	Records   domain.Repository
	Audit     audit.Repository
	Codec     domain.Sealer
	Validator specimen.Validator
	Consent   ConsentChecker
	Cooldown  time.Duration
	Timeout   time.Duration
	Observer  application.Observer
	Clock     application.Clock
}

type SubmitCommand struct {
	SessionHash string
	Upload      specimen.Upload
}

type SubmitResult struct {
	Interpretation json.RawMessage `json:"interpretation"`
	ImageID        string          `json:"image_id"`
}

// Precheck enforces consent then the per-session cooldown. A passing
// rate-limit check stamps the session.
func (s *Service) Precheck(ctx context.Context, st *session.State) error {
	if s.Consent == nil || !s.Consent.CheckStatus(ctx, st) {
		return domain.ErrUnauthorized
	}
	if !s.CheckRateLimit(st) {
		return domain.ErrRateLimited
	}
	return nil
}

// CheckRateLimit allows one analysis per cooldown window per session.
func (s *Service) CheckRateLimit(st *session.State) bool {
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return st.Allow(s.now(), cooldown)
}

// Submit runs one upload through the pipeline. Errors wrap
// specimen.ErrInvalidUpload, ErrStorageFailure or ErrUpstreamUnavailable.
// Persistence of the result is best-effort.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	acc, err := s.Validator.Validate(cmd.Upload)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.Images.Put(ctx, acc.StoredName, acc.ContentType, acc.Data); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
	}

	// detached from client cancellation, bounded by the inference timeout
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout())
	defer cancel()
	res, err := s.Inference.Analyze(ictx, inference.Specimen{
		Filename:    acc.StoredName,
		ContentType: acc.ContentType,
		Data:        acc.Data,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}

	s.persist(context.WithoutCancel(ctx), cmd.SessionHash, acc.StoredName, res)

	return SubmitResult{Interpretation: res.Payload(), ImageID: acc.StoredName}, nil
}

func (s *Service) persist(ctx context.Context, hash, imageRef string, res inference.Result) {
	obs := s.observer()
	if s.Records == nil {
		obs.BestEffort(ctx, application.Outcome{Op: "analysis.save", SessionHash: hash,
			Err: fmt.Errorf("%w: database unavailable", domain.ErrPersistenceWrite)})
		return
	}

	now := s.now()
	blob, err := s.Codec.Encrypt(res.Plaintext())
	if err != nil {
		obs.BestEffort(ctx, application.Outcome{Op: "analysis.encrypt", SessionHash: hash,
			Err: fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)})
		return
	}
	rec := &domain.Record{
		ID:                      domain.RecordID(uuid.New().String()),
		SessionHash:             hash,
		ImageRef:                imageRef,
		EncryptedInterpretation: blob,
		CreatedAt:               now,
	}
	if err := s.Records.Save(ctx, rec); err != nil {
		obs.BestEffort(ctx, application.Outcome{Op: "analysis.save", SessionHash: hash,
			Err: fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)})
		return
	}

	if s.Audit == nil {
		return
	}
	ev := &audit.Event{
		EventType: audit.EventUploadSuccess,
		Details:   fmt.Sprintf("Session: %s, File: %s", hash, imageRef),
		CreatedAt: now,
	}
	if err := s.Audit.Save(ctx, ev); err != nil {
		obs.BestEffort(ctx, application.Outcome{Op: "audit.save", SessionHash: hash,
			Err: fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, err)})
	}
}

// OpenImage streams a stored specimen back to the session that uploaded it.
func (s *Service) OpenImage(ctx context.Context, hash, name string) (*Image, error) {
	if !specimen.ValidStoredName(name) || s.Records == nil {
		return nil, domain.ErrImageNotFound
	}
	ok, err := s.Records.OwnsImage(ctx, hash, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrImageNotFound
	}
	rc, ct, err := s.Images.Open(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrImageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	return &Image{Body: rc, ContentType: ct}, nil
}

func (s *Service) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *Service) now() time.Time { return application.NowUTC(s.Clock) }

func (s *Service) observer() application.Observer {
	if s.Observer == nil {
		return application.NopObserver{}
	}
	return s.Observer
}
