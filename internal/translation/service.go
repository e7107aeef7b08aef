package translation

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mordechaipotash/talmudic-study-app/internal/telemetry"
	"github.com/mordechaipotash/talmudic-study-app/internal/translator"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

// Provider is the external translator. *translator.Client satisfies it.
type Provider interface {
	Translate(ctx context.Context, ref, hebrewText string) (translator.Result, error)
	TranslateStream(ctx context.Context, ref, hebrewText string, onChunk func(string)) (translator.Result, error)
}

// Storage is the durable translation store. *store.Store satisfies it.
type Storage interface {
	GetTranslation(ctx context.Context, ref string) (models.TranslationRecord, error)
	SaveTranslation(ctx context.Context, rec models.TranslationRecord) (string, error)
}

// Service is the translation cache and dispatcher: stored translations are
// returned at zero cost, misses go to the provider exactly once and are
// persisted under the reference.
type Service struct {
	store  Storage
	llm    Provider
	logger *log.Logger
	flight singleflight.Group
}

func NewService(store Storage, llm Provider) *Service {
	return &Service{
		store:  store,
		llm:    llm,
		logger: log.New(log.Writer(), "[TRANSLATE] ", log.LstdFlags),
	}
}

// Translate returns the translation for a reference. Concurrent misses for the
// same reference are coalesced so only one billable provider call is made; all
// callers observe that one result.
func (s *Service) Translate(ctx context.Context, ref, hebrewText, userID string) (models.TranslationResult, error) {
	if rec, err := s.store.GetTranslation(ctx, ref); err == nil {
		telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeCached).Inc()
		return models.TranslationResult{
			Translation: rec.EnglishTranslation,
			Cached:      true,
			Model:       rec.ModelUsed,
			Cost:        0,
		}, nil
	} else if err != models.ErrTranslationNotFound {
		s.logger.Printf("cache lookup failed for %q: %v", ref, err)
	}

	v, err, _ := s.flight.Do(ref, func() (interface{}, error) {
		// The flight outlives whichever caller started it, so one caller's
		// disconnect must not fail every coalesced peer. The provider client
		// carries its own request timeout.
		fctx := context.WithoutCancel(ctx)
		res, err := s.llm.Translate(fctx, ref, hebrewText)
		if err != nil {
			telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeError).Inc()
			return nil, err
		}
		telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeFresh).Inc()
		telemetry.TranslationCost.Add(res.Cost)
		s.persist(fctx, ref, hebrewText, res, userID)
		return res, nil
	})
	if err != nil {
		return models.TranslationResult{}, err
	}
	res := v.(translator.Result)
	return models.TranslationResult{
		Translation: res.Translation,
		Cached:      false,
		Model:       res.Model,
		Cost:        res.Cost,
	}, nil
}

// TranslateStream delivers the translation as an ordered frame sequence
// through emit. A stored translation yields a single cached frame; otherwise
// provider increments are relayed as chunk frames, the result is persisted,
// and a complete frame closes the sequence. A provider failure yields an error
// frame instead; the caller appends the terminal sentinel either way. The only
// non-nil return is an emit failure (client gone), which also stops the
// provider read promptly.
func (s *Service) TranslateStream(ctx context.Context, ref, hebrewText, userID string, emit func(models.StreamFrame) error) error {
	if rec, err := s.store.GetTranslation(ctx, ref); err == nil {
		telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeCached).Inc()
		return emit(models.StreamFrame{
			Type:        models.StreamTypeCached,
			Translation: rec.EnglishTranslation,
			Model:       rec.ModelUsed,
			Cost:        models.FrameCost(0),
		})
	} else if err != models.ErrTranslationNotFound {
		s.logger.Printf("cache lookup failed for %q: %v", ref, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var emitErr error
	res, err := s.llm.TranslateStream(cctx, ref, hebrewText, func(content string) {
		if emitErr != nil {
			return
		}
		if e := emit(models.StreamFrame{Type: models.StreamTypeChunk, Content: content}); e != nil {
			emitErr = e
			cancel()
		}
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeError).Inc()
		s.logger.Printf("streaming translation failed for %q: %v", ref, err)
		return emit(models.StreamFrame{Type: models.StreamTypeError, Error: err.Error()})
	}

	telemetry.TranslationRequests.WithLabelValues(telemetry.OutcomeFresh).Inc()
	telemetry.TranslationCost.Add(res.Cost)
	s.persist(ctx, ref, hebrewText, res, userID)

	return emit(models.StreamFrame{
		Type:        models.StreamTypeComplete,
		Translation: res.Translation,
		Model:       res.Model,
		Cost:        models.FrameCost(res.Cost),
	})
}

// persist writes the finished translation. A storage failure is logged and
// swallowed: the caller still gets the result, at the price of a duplicate
// provider call on the next request for this reference.
func (s *Service) persist(ctx context.Context, ref, hebrewText string, res translator.Result, userID string) {
	rec := models.TranslationRecord{
		SefariaRef:         ref,
		HebrewText:         hebrewText,
		EnglishTranslation: res.Translation,
		ModelUsed:          res.Model,
		RequestCost:        res.Cost,
		Metadata: map[string]interface{}{
			"user_id":   userID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if _, err := s.store.SaveTranslation(ctx, rec); err != nil {
		perr := &models.PersistenceError{Op: "save translation", Err: err}
		s.logger.Printf("warning: %v (ref %q, result returned unpersisted)", perr, ref)
	}
}
