package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

var traineddata = map[domain.Language]string{
	domain.LanguageSpanish: "spa",
	domain.LanguageEnglish: "eng",
	domain.LanguageFrench:  "fra",
	domain.LanguageGerman:  "deu",
	domain.LanguageItalian: "ita",
	domain.LanguagePortug:  "por",
}

// Engine drives the tesseract CLI, one process per recognition pass.
type Engine struct {
	bin    string
	psm    int
	runner Runner
	logger *slog.Logger

	mu        sync.RWMutex
	installed map[string]bool
}

func New(bin string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return NewWithRunner(bin, execRunner{logger: logger}, logger)
}

func NewWithRunner(bin string, runner Runner, logger *slog.Logger) *Engine {
	if bin == "" {
		bin = "tesseract"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{bin: bin, psm: 3, runner: runner, logger: logger}
}

// Initialize checks the binary runs and that the default language is installed.
func (e *Engine) Initialize(ctx context.Context, lang domain.Language) error {
	stdout, stderr, err := e.runner.Run(ctx, nil, e.bin, "--list-langs")
	if err != nil {
		return fmt.Errorf("tesseract --list-langs: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	installed := parseLanguageList(string(stdout) + "\n" + string(stderr))
	code, ok := traineddata[lang]
	if !ok {
		return fmt.Errorf("no traineddata mapping for language %q", lang)
	}
	if !installed[code] {
		return fmt.Errorf("tesseract language %s is not installed", code)
	}

	e.mu.Lock()
	e.installed = installed
	e.mu.Unlock()
	return nil
}

func (e *Engine) Recognize(ctx context.Context, image []byte, lang domain.Language) (domain.RecognitionResult, error) {
	code, err := e.languageArg(lang)
	if err != nil {
		return domain.RecognitionResult{}, err
	}
	stdout, stderr, err := e.runner.Run(ctx, image, e.bin, "stdin", "stdout", "-l", code, "--psm", fmt.Sprint(e.psm), "tsv")
	if err != nil {
		if ctx.Err() != nil {
			return domain.RecognitionResult{}, ctx.Err()
		}
		msg := strings.TrimSpace(string(stderr))
		if isUnsupportedImage(msg) {
			return domain.RecognitionResult{}, domain.NewError(domain.CodeUnsupportedFormat, "tesseract.recognize", "image format not readable by engine", fmt.Errorf("%w: %s", err, msg))
		}
		return domain.RecognitionResult{}, fmt.Errorf("tesseract: %w: %s", err, msg)
	}
	text, confidence, tokens, err := ParseTSV(string(stdout))
	if err != nil {
		return domain.RecognitionResult{}, err
	}
	return domain.RecognitionResult{Text: text, Confidence: confidence, Tokens: tokens}, nil
}

func (e *Engine) Terminate() error {
	e.mu.Lock()
	e.installed = nil
	e.mu.Unlock()
	return nil
}

// languageArg builds the -l argument. LanguageAuto combines every supported
// language that is installed.
func (e *Engine) languageArg(lang domain.Language) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.installed == nil {
		return "", fmt.Errorf("tesseract engine not initialized")
	}
	if lang == domain.LanguageAuto {
		var codes []string
		for _, l := range domain.SupportedLanguages {
			if code := traineddata[l]; e.installed[code] {
				codes = append(codes, code)
			}
		}
		if len(codes) == 0 {
			return "", fmt.Errorf("no supported tesseract languages installed")
		}
		return strings.Join(codes, "+"), nil
	}
	code, ok := traineddata[lang]
	if !ok || !e.installed[code] {
		return "", domain.NewError(domain.CodeProcessingFailed, "tesseract.recognize", "language not installed: "+string(lang), nil)
	}
	return code, nil
}

func parseLanguageList(out string) map[string]bool {
	installed := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, " ") || strings.HasSuffix(line, ":") {
			continue
		}
		installed[line] = true
	}
	return installed
}

func isUnsupportedImage(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"pixreadmem", "unsupported image", "image file format", "read_params_file", "no image"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Languages lists installed traineddata codes, sorted.
func (e *Engine) Languages() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.installed))
	for code := range e.installed {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
