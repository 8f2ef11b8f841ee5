// Package classification runs the label, embed, deduplicate and audit pipeline.
package classification

import (
	"context"
	"errors"
	"math"
	"net/url"
	"time"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/model"
	"imageclassifier/internal/service/audit"
	"imageclassifier/internal/service/dedup"
	"imageclassifier/internal/service/embedding"
	"imageclassifier/internal/service/vision"
)

// ClassReader is the read side of the class store.
type ClassReader interface {
	ListAll(ctx context.Context) ([]model.ClassRecord, error)
	FindOne(ctx context.Context, filter model.ClassFilter) (*model.ClassRecord, error)
}

// EventPublisher receives an event after every successful classification.
type EventPublisher interface {
	Publish(event dto.ClassificationEvent)
}

// Result is a successful classification.
type Result struct {
	ClassID    int64
	Label      string
	Confidence float64
	Created    bool
	Similarity float64
}

// auditTimeout bounds an audit write once the request context is gone.
const auditTimeout = 5 * time.Second

// Service classifies images and serves the class catalogue.
type Service struct {
	annotator vision.Annotator
	embedder  embedding.Embedder
	resolver  dedup.ClassResolver
	recorder  *audit.Recorder
	classes   ClassReader
	events    EventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// Deps groups the collaborators of a Service. Events may be nil.
type Deps struct {
	Annotator vision.Annotator
	Embedder  embedding.Embedder
	Resolver  dedup.ClassResolver
	Recorder  *audit.Recorder
	Classes   ClassReader
	Events    EventPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		annotator: d.Annotator,
		embedder:  d.Embedder,
		resolver:  d.Resolver,
		recorder:  d.Recorder,
		classes:   d.Classes,
		events:    d.Events,
		logger:    d.Logger,
		now:       d.Now,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ValidateImagePath accepts only absolute http(s) URLs with a host.
func ValidateImagePath(raw string) error {
	if raw == "" {
		return errs.Wrap(errs.ErrInvalidRequest, errors.New("image_path is required"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidRequest, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Wrapf(errs.ErrInvalidRequest, "image_path must be an absolute http(s) URL: %q", raw)
	}
	return nil
}

// Classify labels the image, maps the label onto a class and records the attempt.
// imagePath must already be valid. Any failure is recorded in the analysis log
// before it is returned.
func (s *Service) Classify(ctx context.Context, imagePath string) (*Result, error) {
	requestedAt := s.now()

	ann, err := s.annotator.Annotate(ctx, imagePath)
	if err != nil {
		return nil, s.fail(ctx, imagePath, err)
	}

	vec, err := s.embedder.Embed(ctx, ann.Label)
	if err != nil {
		return nil, s.fail(ctx, imagePath, err)
	}

	res, err := s.resolver.ResolveClass(ctx, ann.Label, vec)
	if err != nil {
		return nil, s.fail(ctx, imagePath, err)
	}
	if res.Created {
		s.logger.InfoCtx(ctx, "No similar class for %q, created class %d", ann.Label, res.Class.ID)
	} else {
		s.logger.InfoCtx(ctx, "Label %q matched class %d (%q, similarity %.4f)", ann.Label, res.Class.ID, res.Class.Label, res.Similarity)
	}

	auditCtx, cancel := auditContext(ctx)
	_, err = s.recorder.RecordSuccess(auditCtx, audit.SuccessEntry{
		ImagePath:   imagePath,
		Class:       res.Class.ID,
		Confidence:  ann.Confidence,
		RequestedAt: requestedAt,
		RespondedAt: s.now(),
	})
	cancel()
	if err != nil {
		return nil, s.fail(ctx, imagePath, err)
	}

	result := &Result{
		ClassID:    res.Class.ID,
		Label:      res.Class.Label,
		Confidence: ann.Confidence,
		Created:    res.Created,
		Similarity: res.Similarity,
	}
	s.publish(ctx, imagePath, result)
	return result, nil
}

// fail records the failed attempt and returns cause. A failure to record is only logged.
func (s *Service) fail(ctx context.Context, imagePath string, cause error) error {
	s.logger.ErrorCtx(ctx, "Classification of %s failed with %s: %v", imagePath, errs.CodeOf(cause), cause)
	auditCtx, cancel := auditContext(ctx)
	defer cancel()
	if _, err := s.recorder.RecordFailure(auditCtx, imagePath, cause); err != nil {
		s.logger.ErrorCtx(ctx, "Failed to record failed attempt: %v", err)
	}
	return cause
}

// auditContext keeps ctx values but not its cancellation, so an attempt is
// recorded even when the caller has gone away.
func auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
}

func (s *Service) publish(ctx context.Context, imagePath string, r *Result) {
	if s.events == nil {
		return
	}
	event := dto.ClassificationEvent{
		RequestID:  logger.RequestID(ctx),
		ImagePath:  imagePath,
		ClassID:    r.ClassID,
		Label:      r.Label,
		Confidence: r.Confidence,
		NewClass:   r.Created,
	}
	if !math.IsNaN(r.Similarity) {
		sim := r.Similarity
		event.Similarity = &sim
	}
	s.events.Publish(event)
}

// ListClasses returns every class in id order.
func (s *Service) ListClasses(ctx context.Context) ([]dto.ClassInfo, error) {
	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, errs.Ensure(errs.ErrClassStore, err)
	}
	out := make([]dto.ClassInfo, 0, len(classes))
	for _, c := range classes {
		out = append(out, dto.ClassInfo{ClassID: c.ID, Label: c.Label})
	}
	return out, nil
}

// GetClass returns one class. It fails with errs.ErrClassNotFound for an unknown id.
func (s *Service) GetClass(ctx context.Context, id int64) (*dto.ClassInfo, error) {
	c, err := s.classes.FindOne(ctx, model.ByID(id))
	if err != nil {
		return nil, errs.Ensure(errs.ErrClassStore, err)
	}
	return &dto.ClassInfo{ClassID: c.ID, Label: c.Label}, nil
}
