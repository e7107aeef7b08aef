package translation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mordechaipotash/talmudic-study-app/internal/translator"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

type fakeStorage struct {
	mu      sync.Mutex
	records map[string]models.TranslationRecord
	saveErr error
	saves   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: map[string]models.TranslationRecord{}}
}

func (f *fakeStorage) GetTranslation(ctx context.Context, ref string) (models.TranslationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ref]
	if !ok {
		return models.TranslationRecord{}, models.ErrTranslationNotFound
	}
	return rec, nil
}

func (f *fakeStorage) SaveTranslation(ctx context.Context, rec models.TranslationRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.records[rec.SefariaRef] = rec
	return "id-" + rec.SefariaRef, nil
}

type fakeProvider struct {
	calls  int64
	chunks []string
	cost   float64
	err    error
	gate   chan struct{}
}

func (f *fakeProvider) result() translator.Result {
	return translator.Result{
		Translation: strings.TrimSpace(strings.Join(f.chunks, "")),
		Model:       "google/gemini-2.5-flash",
		Cost:        f.cost,
	}
}

func (f *fakeProvider) Translate(ctx context.Context, ref, hebrewText string) (translator.Result, error) {
	return f.TranslateStream(ctx, ref, hebrewText, nil)
}

func (f *fakeProvider) TranslateStream(ctx context.Context, ref, hebrewText string, onChunk func(string)) (translator.Result, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return translator.Result{}, f.err
	}
	for _, c := range f.chunks {
		if ctx.Err() != nil {
			return translator.Result{}, ctx.Err()
		}
		if onChunk != nil {
			onChunk(c)
		}
	}
	return f.result(), nil
}

func TestTranslateCacheHit(t *testing.T) {
	st := newFakeStorage()
	st.records["Berakhot 2a"] = models.TranslationRecord{
		SefariaRef:         "Berakhot 2a",
		EnglishTranslation: "Hear, O Israel",
		ModelUsed:          "google/gemini-2.5-flash",
		RequestCost:        0.02,
	}
	p := &fakeProvider{}
	svc := NewService(st, p)

	res, err := svc.Translate(context.Background(), "Berakhot 2a", "שמע", "u1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !res.Cached || res.Cost != 0 {
		t.Fatalf("expected cached zero-cost result, got %+v", res)
	}
	if res.Translation != "Hear, O Israel" {
		t.Fatalf("translation = %q", res.Translation)
	}
	if atomic.LoadInt64(&p.calls) != 0 {
		t.Fatalf("provider called %d times on cache hit", p.calls)
	}
}

func TestTranslateMissThenHit(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{chunks: []string{"Hear, ", "O Israel"}, cost: 0.03}
	svc := NewService(st, p)

	first, err := svc.Translate(context.Background(), "Berakhot 2a", "שמע", "u1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if first.Cached || first.Cost != 0.03 {
		t.Fatalf("expected fresh billed result, got %+v", first)
	}
	if st.saves != 1 {
		t.Fatalf("expected one persisted record, got %d", st.saves)
	}

	second, err := svc.Translate(context.Background(), "Berakhot 2a", "שמע", "u1")
	if err != nil {
		t.Fatalf("Translate second: %v", err)
	}
	if !second.Cached || second.Cost != 0 {
		t.Fatalf("expected cached result, got %+v", second)
	}
	if second.Translation != first.Translation {
		t.Fatalf("cached text differs: %q vs %q", second.Translation, first.Translation)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}
}

func TestTranslateCoalescesConcurrentMisses(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{chunks: []string{"Hear"}, cost: 0.01, gate: make(chan struct{})}
	svc := NewService(st, p)

	const n = 8
	var wg sync.WaitGroup
	results := make([]models.TranslationResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Translate(context.Background(), "Berakhot 2a", "שמע", "u1")
		}(i)
	}
	// Let every caller miss the store and queue on the in-flight group, then
	// release the single provider call.
	time.Sleep(50 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Translation != "Hear" {
			t.Fatalf("caller %d translation = %q", i, results[i].Translation)
		}
	}
	if got := atomic.LoadInt64(&p.calls); got != 1 {
		t.Fatalf("provider called %d times under %d concurrent callers, want 1", got, n)
	}
	if st.saves != 1 {
		t.Fatalf("expected one persisted record, got %d", st.saves)
	}
}

func TestTranslateSurvivesFirstCallerDisconnect(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{chunks: []string{"Hear"}, cost: 0.01, gate: make(chan struct{})}
	svc := NewService(st, p)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res models.TranslationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.Translate(ctx, "Berakhot 2a", "שמע", "u1")
		done <- outcome{res, err}
	}()

	// Drop the caller while the provider call is still in flight, then let the
	// call finish. The shared flight must not inherit the cancellation.
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(p.gate)

	out := <-done
	if out.err != nil {
		t.Fatalf("Translate failed after caller cancellation: %v", out.err)
	}
	if out.res.Translation != "Hear" {
		t.Fatalf("translation = %q", out.res.Translation)
	}
	if st.saves != 1 {
		t.Fatalf("expected one persisted record, got %d", st.saves)
	}
}

func TestTranslatePersistFailureSwallowed(t *testing.T) {
	st := newFakeStorage()
	st.saveErr = errors.New("connection refused")
	p := &fakeProvider{chunks: []string{"Hear"}, cost: 0.01}
	svc := NewService(st, p)

	res, err := svc.Translate(context.Background(), "Berakhot 2a", "שמע", "u1")
	if err != nil {
		t.Fatalf("Translate should survive persist failure: %v", err)
	}
	if res.Translation != "Hear" || res.Cached {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTranslateProviderErrorNotCached(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{err: &models.UpstreamError{Service: "openrouter", StatusCode: 502, Message: "bad gateway"}}
	svc := NewService(st, p)

	_, err := svc.Translate(context.Background(), "X 1a", "טקסט", "u1")
	var ue *models.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if st.saves != 0 {
		t.Fatalf("nothing should be persisted on provider failure, got %d saves", st.saves)
	}
}

func collectFrames(t *testing.T, svc *Service, ref, hebrew string) []models.StreamFrame {
	t.Helper()
	var frames []models.StreamFrame
	err := svc.TranslateStream(context.Background(), ref, hebrew, "u1", func(f models.StreamFrame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("TranslateStream: %v", err)
	}
	return frames
}

func TestStreamCachedSingleFrame(t *testing.T) {
	st := newFakeStorage()
	st.records["Berakhot 2a"] = models.TranslationRecord{
		SefariaRef:         "Berakhot 2a",
		EnglishTranslation: "Hear, O Israel",
		ModelUsed:          "google/gemini-2.5-flash",
	}
	svc := NewService(st, &fakeProvider{})

	frames := collectFrames(t, svc, "Berakhot 2a", "שמע")
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Type != models.StreamTypeCached || f.Translation != "Hear, O Israel" {
		t.Fatalf("unexpected cached frame: %+v", f)
	}
	if f.Cost == nil || *f.Cost != 0 {
		t.Fatalf("cached frame must carry an explicit zero cost: %+v", f)
	}
}

func TestStreamChunksThenComplete(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{chunks: []string{"Hear, ", "O ", "Israel"}, cost: 0.05}
	svc := NewService(st, p)

	frames := collectFrames(t, svc, "Berakhot 2a", "שמע")
	if len(frames) != 4 {
		t.Fatalf("expected 3 chunks + complete, got %d frames", len(frames))
	}
	var assembled strings.Builder
	for _, f := range frames[:3] {
		if f.Type != models.StreamTypeChunk {
			t.Fatalf("expected chunk frame, got %+v", f)
		}
		assembled.WriteString(f.Content)
	}
	last := frames[3]
	if last.Type != models.StreamTypeComplete {
		t.Fatalf("expected complete frame, got %+v", last)
	}
	if strings.TrimSpace(assembled.String()) != last.Translation {
		t.Fatalf("chunk concatenation %q != complete translation %q", assembled.String(), last.Translation)
	}
	if last.Cost == nil || *last.Cost != 0.05 {
		t.Fatalf("cost = %v", last.Cost)
	}
	for _, f := range frames[:3] {
		if f.Cost != nil {
			t.Fatalf("chunk frame must not carry a cost: %+v", f)
		}
	}
	if st.saves != 1 {
		t.Fatalf("expected one persisted record, got %d", st.saves)
	}
}

func TestStreamProviderErrorEmitsErrorFrame(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{err: &models.UpstreamError{Service: "openrouter", StatusCode: 500, Message: "boom"}}
	svc := NewService(st, p)

	frames := collectFrames(t, svc, "X 1a", "טקסט")
	if len(frames) != 1 || frames[0].Type != models.StreamTypeError {
		t.Fatalf("expected single error frame, got %+v", frames)
	}
	if frames[0].Error == "" {
		t.Fatal("error frame missing message")
	}
	if st.saves != 0 {
		t.Fatalf("no record should be persisted after stream failure, got %d saves", st.saves)
	}
}

func TestStreamStopsWhenConsumerGone(t *testing.T) {
	st := newFakeStorage()
	p := &fakeProvider{chunks: []string{"a", "b", "c", "d"}, cost: 0.01}
	svc := NewService(st, p)

	gone := errors.New("client disconnected")
	seen := 0
	err := svc.TranslateStream(context.Background(), "Berakhot 2a", "שמע", "u1", func(f models.StreamFrame) error {
		seen++
		if seen >= 2 {
			return gone
		}
		return nil
	})
	if !errors.Is(err, gone) {
		t.Fatalf("expected emit error surfaced, got %v", err)
	}
	if st.saves != 0 {
		t.Fatalf("partial stream must not persist, got %d saves", st.saves)
	}
}
