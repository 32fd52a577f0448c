package tesseract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t200\t200\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t12\t96\tFACTURA\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t40\t12\t90\tN.\n" +
	"5\t1\t1\t1\t2\t1\t10\t30\t60\t12\t84\tTotal\n" +
	"5\t1\t2\t1\t1\t1\t10\t80\t60\t12\t70\tGracias\n" +
	"5\t1\t2\t1\t1\t2\t80\t80\t10\t12\t-1\t \n"

type fakeRunner struct {
	calls  [][]string
	stdin  [][]byte
	stdout map[string]string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	f.stdin = append(f.stdin, stdin)
	if len(args) > 0 && args[0] == "--list-langs" {
		return []byte(f.stdout["list"]), nil, nil
	}
	if f.err != nil {
		return nil, []byte(f.stderr), f.err
	}
	return []byte(f.stdout["tsv"]), nil, nil
}

func TestParseTSV(t *testing.T) {
	text, conf, tokens, err := ParseTSV(sampleTSV)
	if err != nil {
		t.Fatalf("ParseTSV() error = %v", err)
	}
	if text != "FACTURA N.\nTotal\n\nGracias" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(tokens))
	}
	if conf != 85 {
		t.Fatalf("expected mean confidence 85, got %v", conf)
	}
	if tokens[0].Box != (domain.BoundingBox{X: 10, Y: 10, Width: 50, Height: 12}) {
		t.Fatalf("unexpected box %+v", tokens[0].Box)
	}
}

func TestParseTSVRejectsMissingHeader(t *testing.T) {
	if _, _, _, err := ParseTSV("garbage"); err == nil {
		t.Fatalf("expected header error")
	}
}

func TestEngineRecognizeUsesInstalledLanguages(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{
		"list": "List of available languages in \"/usr/share/tessdata/\" (3):\neng\nosd\nspa\n",
		"tsv":  sampleTSV,
	}}
	e := NewWithRunner("tesseract", runner, nil)
	if err := e.Initialize(context.Background(), domain.LanguageSpanish); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if _, err := e.Recognize(context.Background(), []byte("png"), domain.LanguageAuto); err != nil {
		t.Fatalf("Recognize(auto) error = %v", err)
	}
	last := strings.Join(runner.calls[len(runner.calls)-1], " ")
	if !strings.Contains(last, "-l spa+eng") {
		t.Fatalf("expected combined languages, got %q", last)
	}
	if string(runner.stdin[len(runner.stdin)-1]) != "png" {
		t.Fatalf("expected image on stdin")
	}

	res, err := e.Recognize(context.Background(), []byte("png"), domain.LanguageSpanish)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Confidence != 85 || len(res.Tokens) != 4 {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := e.Recognize(context.Background(), []byte("png"), domain.LanguageGerman); !domain.IsKind(err, domain.ErrProcessingFailed) {
		t.Fatalf("expected processing_failed for missing language, got %v", err)
	}
}

func TestEngineInitializeFailsForMissingLanguage(t *testing.T) {
	runner := &fakeRunner{stdout: map[string]string{"list": "List of available languages (1):\neng\n"}}
	e := NewWithRunner("", runner, nil)
	if err := e.Initialize(context.Background(), domain.LanguageSpanish); err == nil {
		t.Fatalf("expected error when spa is not installed")
	}
}

func TestEngineMapsUnreadableImage(t *testing.T) {
	runner := &fakeRunner{
		stdout: map[string]string{"list": "eng\n"},
		stderr: "Error in pixReadMem: Unknown format: no pix returned",
		err:    errors.New("exit status 1"),
	}
	e := NewWithRunner("tesseract", runner, nil)
	if err := e.Initialize(context.Background(), domain.LanguageEnglish); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	_, err := e.Recognize(context.Background(), []byte("???"), domain.LanguageEnglish)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported_format, got %v", err)
	}
}
