package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// LanguageDetector maps a text sample to a language.
type LanguageDetector interface {
	DetectLanguage(text string) domain.Language
}

type Config struct {
	DefaultLanguage domain.Language
	InitTimeout     time.Duration
	PassTimeout     time.Duration
	DetectTimeout   time.Duration
	SampleRunes     int
	MaxImageBytes   int64

	// Sampler shrinks the image for the language detection pass. Nil uses the full image.
	Sampler func(image []byte) ([]byte, error)
}

func (c Config) normalize() Config {
	out := c
	if !out.DefaultLanguage.Supported() {
		out.DefaultLanguage = domain.LanguageSpanish
	}
	if out.InitTimeout <= 0 {
		out.InitTimeout = 30 * time.Second
	}
	if out.PassTimeout <= 0 {
		out.PassTimeout = 60 * time.Second
	}
	if out.DetectTimeout <= 0 {
		out.DetectTimeout = 20 * time.Second
	}
	if out.SampleRunes <= 0 {
		out.SampleRunes = 400
	}
	return out
}

// Recognizer owns one shared engine: it initializes it once, serializes
// every engine call and classifies failures before returning them.
type Recognizer struct {
	engine   ports.RecognitionEngine
	detector LanguageDetector
	cfg      Config
	logger   *slog.Logger

	init singleflight.Group

	mu    sync.Mutex
	state State

	engineMu sync.Mutex
}

func NewRecognizer(engine ports.RecognitionEngine, detector LanguageDetector, cfg Config, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		engine:   engine,
		detector: detector,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Initialize brings the engine to Ready. Concurrent callers share a single
// in-flight initialization; a failed one leaves the adapter Uninitialized so
// the next call tries again.
func (r *Recognizer) Initialize(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateTerminated:
		r.mu.Unlock()
		return domain.NewError(domain.CodeInitializationFailed, "ocr.initialize", "recognizer is terminated", nil)
	}
	r.mu.Unlock()

	_, err, _ := r.init.Do("init", func() (any, error) {
		r.mu.Lock()
		if r.state == StateReady {
			r.mu.Unlock()
			return nil, nil
		}
		r.state = StateInitializing
		r.mu.Unlock()

		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.InitTimeout)
		defer cancel()

		start := time.Now()
		r.engineMu.Lock()
		err := r.engine.Initialize(initCtx, r.cfg.DefaultLanguage)
		r.engineMu.Unlock()

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.state == StateTerminated {
			if err == nil {
				_ = r.engine.Terminate()
			}
			return nil, domain.NewError(domain.CodeInitializationFailed, "ocr.initialize", "recognizer terminated during initialization", nil)
		}
		if err != nil {
			r.state = StateUninitialized
			r.logger.Error("ocr_initialize_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return nil, domain.WrapError(domain.ErrInitializationFailed, "ocr.initialize", err)
		}
		r.state = StateReady
		r.logger.Info("ocr_ready", "language", r.cfg.DefaultLanguage, "duration_ms", time.Since(start).Milliseconds())
		return nil, nil
	})
	return err
}

// Recognize runs a full recognition pass. LanguageAuto first detects the
// language on a sample pass and falls back to the default language when that fails.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, lang domain.Language) (domain.RecognitionResult, error) {
	if len(image) == 0 {
		return domain.RecognitionResult{}, domain.NewError(domain.CodeUnsupportedFormat, "ocr.recognize", "empty image", nil)
	}
	if r.cfg.MaxImageBytes > 0 && int64(len(image)) > r.cfg.MaxImageBytes {
		return domain.RecognitionResult{}, domain.NewError(domain.CodeFileTooLarge, "ocr.recognize", "image exceeds recognition limit", nil)
	}
	if err := r.Initialize(ctx); err != nil {
		return domain.RecognitionResult{}, err
	}

	switch {
	case lang == "":
		lang = r.cfg.DefaultLanguage
	case lang == domain.LanguageAuto:
		lang = r.detectLanguage(ctx, image)
	case !lang.Supported():
		return domain.RecognitionResult{}, domain.NewError(domain.CodeProcessingFailed, "ocr.recognize", "language not supported: "+string(lang), nil)
	}

	start := time.Now()
	res, err := r.pass(ctx, image, lang, r.cfg.PassTimeout)
	if err != nil {
		return domain.RecognitionResult{}, err
	}
	res.Text = Normalize(res.Text)
	res.Language = lang
	res.Duration = time.Since(start)
	return res, nil
}

func (r *Recognizer) detectLanguage(ctx context.Context, image []byte) domain.Language {
	fallback := r.cfg.DefaultLanguage
	if r.detector == nil {
		return fallback
	}
	if r.cfg.Sampler != nil {
		small, err := r.cfg.Sampler(image)
		if err != nil {
			r.logger.Warn("ocr_language_sample_failed", "error", err, "fallback", fallback)
			return fallback
		}
		image = small
	}
	sample, err := r.pass(ctx, image, domain.LanguageAuto, r.cfg.DetectTimeout)
	if err != nil {
		r.logger.Warn("ocr_language_detection_failed", "error", err, "fallback", fallback)
		return fallback
	}
	text := []rune(sample.Text)
	if len(text) > r.cfg.SampleRunes {
		text = text[:r.cfg.SampleRunes]
	}
	detected := r.detector.DetectLanguage(string(text))
	if !detected.Supported() {
		r.logger.Info("ocr_language_undetected", "fallback", fallback)
		return fallback
	}
	return detected
}

func (r *Recognizer) pass(ctx context.Context, image []byte, lang domain.Language, timeout time.Duration) (domain.RecognitionResult, error) {
	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.engineMu.Lock()
	defer r.engineMu.Unlock()

	r.mu.Lock()
	terminated := r.state == StateTerminated
	r.mu.Unlock()
	if terminated {
		return domain.RecognitionResult{}, domain.NewError(domain.CodeInitializationFailed, "ocr.recognize", "recognizer is terminated", nil)
	}

	res, err := r.engine.Recognize(passCtx, image, lang)
	if err != nil {
		return domain.RecognitionResult{}, classify(passCtx, err)
	}
	return res, nil
}

// Terminate releases the engine. It is idempotent and final.
func (r *Recognizer) Terminate() error {
	r.mu.Lock()
	prev := r.state
	r.state = StateTerminated
	r.mu.Unlock()

	if prev != StateReady {
		return nil
	}
	r.engineMu.Lock()
	defer r.engineMu.Unlock()
	if err := r.engine.Terminate(); err != nil {
		return fmt.Errorf("terminate ocr engine: %w", err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	var typed *domain.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.CodeProcessingFailed, "ocr.recognize", "recognition timed out", err)
	}
	return domain.WrapError(domain.ErrProcessingFailed, "ocr.recognize", err)
}
