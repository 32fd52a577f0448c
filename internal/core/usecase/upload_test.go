package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/classifier"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/fields"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/persistence"
)

const uploadInvoiceText = `INVOICE
Invoice number: INV-2024-001
Bill to: ACME Corp
Subtotal: 100.00 EUR
VAT 21%: 21.00
Total due: 121.00 EUR
Due date: 2024-03-01`

type imagesFake struct {
	width    int
	height   int
	dimErr   error
	prepared int
}

func (f *imagesFake) Dimensions([]byte) (int, int, error) {
	return f.width, f.height, f.dimErr
}

func (f *imagesFake) Compress(data []byte, mimeType string) ([]byte, string, error) {
	return data, mimeType, nil
}

func (f *imagesFake) Prepare(data []byte) ([]byte, error) {
	f.prepared++
	return data, nil
}

type recognizerFake struct {
	result  domain.RecognitionResult
	err     error
	panics  bool
	calls   int
	gotLang domain.Language
}

func (f *recognizerFake) Recognize(_ context.Context, _ []byte, lang domain.Language) (domain.RecognitionResult, error) {
	f.calls++
	f.gotLang = lang
	if f.panics {
		panic("engine crashed")
	}
	return f.result, f.err
}

type textExtractorFake struct {
	text  string
	err   error
	calls int
}

func (f *textExtractorFake) Extract(context.Context, string, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type enhancerFake struct {
	result   domain.Enhancement
	err      error
	calls    int
	gotText  string
	gotImage []byte
}

func (f *enhancerFake) Enhance(_ context.Context, text string, image []byte, _ string) (domain.Enhancement, error) {
	f.calls++
	f.gotText = text
	f.gotImage = image
	return f.result, f.err
}

type documentStoreFake struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
	err  error
}

func newDocumentStoreFake() *documentStoreFake {
	return &documentStoreFake{docs: make(map[string]*domain.Document)}
}

func (f *documentStoreFake) Put(_ context.Context, doc *domain.Document, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentStoreFake) Get(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *documentStoreFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(f.docs, id)
	return nil
}

type publisherFake struct {
	ids []string
	err error
}

func (f *publisherFake) PublishDocumentProcessed(_ context.Context, doc *domain.Document) error {
	f.ids = append(f.ids, doc.ID)
	return f.err
}

type pipelineObserverFake struct {
	stages       []domain.Stage
	status       domain.UploadStatus
	code         domain.ErrorCode
	enhancements []string
}

func (o *pipelineObserverFake) ObserveStage(stage domain.Stage, _ time.Duration) {
	o.stages = append(o.stages, stage)
}

func (o *pipelineObserverFake) ObserveUpload(status domain.UploadStatus, code domain.ErrorCode, _ time.Duration) {
	o.status = status
	o.code = code
}

func (o *pipelineObserverFake) ObserveEnhancement(outcome string) {
	o.enhancements = append(o.enhancements, outcome)
}

type uploadFixture struct {
	images     *imagesFake
	recognizer *recognizerFake
	extractor  *textExtractorFake
	enhancer   *enhancerFake
	local      *documentStoreFake
	cloud      *documentStoreFake
	events     *publisherFake
	observer   *pipelineObserverFake
	progress   []domain.Progress
}

func newUploadFixture() *uploadFixture {
	return &uploadFixture{
		images:     &imagesFake{width: 200, height: 200},
		recognizer: &recognizerFake{result: domain.RecognitionResult{Text: uploadInvoiceText, Confidence: 92, Language: domain.LanguageEnglish}},
		extractor:  &textExtractorFake{},
		enhancer:   &enhancerFake{},
		local:      newDocumentStoreFake(),
		cloud:      newDocumentStoreFake(),
		events:     &publisherFake{},
		observer:   &pipelineObserverFake{},
	}
}

func (f *uploadFixture) useCase(t *testing.T, cfg UploadConfig) *UploadUseCase {
	t.Helper()
	cls, err := classifier.NewDefault()
	if err != nil {
		t.Fatalf("classifier.NewDefault() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := NewUploadUseCase(cfg, UploadDeps{
		Images:      f.images,
		Recognizer:  f.recognizer,
		Extractor:   f.extractor,
		Classifier:  cls,
		Fields:      fields.NewExtractor(),
		Anonymizer:  fields.NewAnonymizer(),
		Enhancer:    f.enhancer,
		Persistence: persistence.NewRouter(f.local, f.cloud, logger),
		Events:      f.events,
		Observer:    f.observer,
		Logger:      logger,
	})
	uc.newID = func() string { return "doc-1" }
	return uc
}

func (f *uploadFixture) record(p domain.Progress) {
	f.progress = append(f.progress, p)
}

func (f *uploadFixture) stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(f.progress))
	for _, p := range f.progress {
		out = append(out, p.Stage)
	}
	return out
}

func pngFile(data []byte) domain.UploadFile {
	return domain.UploadFile{Name: "scan.png", MimeType: "image/png", Data: data}
}

func TestUploadInvoiceImageIsClassifiedAndStored(t *testing.T) {
	f := newUploadFixture()
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{Location: domain.LocationLocal}, f.record)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	doc := res.Document
	if doc.Classification.Type != domain.TypeInvoice {
		t.Fatalf("expected invoice, got %s", doc.Classification.Type)
	}
	if doc.Recognition.Source != "ocr" || doc.Recognition.Confidence != 92 {
		t.Fatalf("unexpected recognition summary: %+v", doc.Recognition)
	}
	if len(doc.Fields.Amounts) == 0 {
		t.Fatalf("expected amounts to be extracted")
	}
	if _, ok := f.local.docs["doc-1"]; !ok {
		t.Fatalf("expected document in local store")
	}
	if len(f.cloud.docs) != 0 {
		t.Fatalf("local upload must not reach cloud store")
	}
	if !reflect.DeepEqual(f.events.ids, []string{"doc-1"}) {
		t.Fatalf("expected processed event, got %v", f.events.ids)
	}
	if f.images.prepared != 1 || f.recognizer.calls != 1 {
		t.Fatalf("expected one prepare and one recognition, got %d/%d", f.images.prepared, f.recognizer.calls)
	}
	if f.observer.status != domain.UploadSucceeded || f.observer.code != "" {
		t.Fatalf("unexpected observed upload: %s/%s", f.observer.status, f.observer.code)
	}
	if res.Duration <= 0 {
		t.Fatalf("expected positive duration")
	}
}

func TestUploadEmptyFileFailsBeforeRecognition(t *testing.T) {
	f := newUploadFixture()
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile(nil), domain.UploadOptions{}, f.record)
	if res.Succeeded() {
		t.Fatalf("expected failure for empty file")
	}
	if res.Error.Code != domain.CodeValidationFailed || res.Error.Message != "file is empty" {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if res.Error.Recoverable {
		t.Fatalf("empty file must not be recoverable")
	}
	if f.recognizer.calls != 0 || f.images.prepared != 0 {
		t.Fatalf("recognition must not run for an empty file")
	}
	if !reflect.DeepEqual(f.stages(), []domain.Stage{domain.StageValidating}) {
		t.Fatalf("expected only validating stage, got %v", f.stages())
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		cfg    func(*UploadConfig)
		file   domain.UploadFile
		opts   domain.UploadOptions
		width  int
		height int
		code   domain.ErrorCode
	}{
		{
			name: "oversize",
			cfg:  func(c *UploadConfig) { c.MaxFileBytes = 10 },
			file: pngFile([]byte("eleven byte")),
			code: domain.CodeFileTooLarge,
		},
		{
			name: "disallowed mime",
			file: domain.UploadFile{Name: "a.zip", MimeType: "application/zip", Data: []byte("PK")},
			code: domain.CodeUnsupportedFormat,
		},
		{
			name:   "small image",
			file:   pngFile([]byte("png-bytes")),
			width:  50,
			height: 300,
			code:   domain.CodeValidationFailed,
		},
		{
			name: "unknown location",
			file: pngFile([]byte("png-bytes")),
			opts: domain.UploadOptions{Location: "moon"},
			code: domain.CodeValidationFailed,
		},
		{
			name: "unsupported language",
			file: pngFile([]byte("png-bytes")),
			opts: domain.UploadOptions{Language: "xx"},
			code: domain.CodeValidationFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newUploadFixture()
			if tc.width > 0 {
				f.images.width, f.images.height = tc.width, tc.height
			}
			cfg := DefaultUploadConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			res := f.useCase(t, cfg).Upload(context.Background(), tc.file, tc.opts, nil)
			if res.Succeeded() || res.Error.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, res.Error)
			}
			if f.recognizer.calls != 0 {
				t.Fatalf("recognition must not run after a validation failure")
			}
		})
	}
}

func TestUploadLocalOnlyNeverCallsEnhancer(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.result = domain.RecognitionResult{Text: "faded receipt text", Confidence: 10}
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{LocalOnly: true}, f.record)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if f.enhancer.calls != 0 {
		t.Fatalf("local-only upload called the enhancer %d times", f.enhancer.calls)
	}
	for _, stage := range f.stages() {
		if stage == domain.StageEnhancing {
			t.Fatalf("local-only upload must not enter the enhancing stage")
		}
	}
	if res.Document.Enhanced {
		t.Fatalf("document must not be marked enhanced")
	}
	if !reflect.DeepEqual(f.observer.enhancements, []string{EnhancementLocalOnly}) {
		t.Fatalf("unexpected enhancement outcomes: %v", f.observer.enhancements)
	}
}

func TestUploadProgressIsMonotonicThroughEnhancement(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.result = domain.RecognitionResult{Text: "blurry scan, write to ana@example.com", Confidence: 10}
	f.enhancer.result = domain.Enhancement{Type: domain.TypeReceipt, Confidence: 0.9}
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{}, f.record)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res.Error)
	}

	var percents []int
	for _, p := range f.progress {
		percents = append(percents, p.Percent)
	}
	if !reflect.DeepEqual(percents, []int{10, 20, 40, 60, 80, 100}) {
		t.Fatalf("unexpected progress sequence %v", percents)
	}
	if !res.Document.Enhanced || res.Document.Classification.Type != domain.TypeReceipt {
		t.Fatalf("expected enhanced receipt, got %+v", res.Document.Classification)
	}
	if strings.Contains(f.enhancer.gotText, "ana@example.com") || !strings.Contains(f.enhancer.gotText, "[EMAIL]") {
		t.Fatalf("enhancer text was not anonymized: %q", f.enhancer.gotText)
	}
	if f.enhancer.gotImage != nil {
		t.Fatalf("image must not be shared without consent")
	}
}

func TestUploadSharesImageOnlyWithConsent(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.result = domain.RecognitionResult{Text: "smudged", Confidence: 20}
	f.enhancer.result = domain.Enhancement{Type: domain.TypeUnknown}
	uc := f.useCase(t, DefaultUploadConfig())

	data := []byte("png-bytes")
	res := uc.Upload(context.Background(), pngFile(data), domain.UploadOptions{ShareImage: true}, nil)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if !bytes.Equal(f.enhancer.gotImage, data) {
		t.Fatalf("expected image to be shared, got %q", f.enhancer.gotImage)
	}
}

func TestUploadEnhancementFailureOnlyWarns(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.result = domain.RecognitionResult{Text: "faded text", Confidence: 30}
	f.enhancer.err = domain.RateLimited("reasoning.enhance", 30*time.Second, nil)
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{}, nil)
	if !res.Succeeded() {
		t.Fatalf("enhancement failure must not fail the upload: %+v", res.Error)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], "enhancement skipped") {
		t.Fatalf("expected one enhancement warning, got %v", res.Warnings)
	}
	if res.Document.Enhanced {
		t.Fatalf("document must not be marked enhanced")
	}
	if _, ok := f.local.docs["doc-1"]; !ok {
		t.Fatalf("document must still be stored")
	}
}

func TestUploadPartialStorageFailureFails(t *testing.T) {
	f := newUploadFixture()
	f.cloud.err = errors.New("bucket unavailable")
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{Location: domain.LocationBoth}, f.record)
	if res.Succeeded() {
		t.Fatalf("expected failure on partial write")
	}
	if res.Error.Code != domain.CodeStorageFailed || !res.Error.Recoverable {
		t.Fatalf("expected recoverable storage_failed, got %+v", res.Error)
	}
	last := f.progress[len(f.progress)-1]
	if last.Stage != domain.StageStoring {
		t.Fatalf("expected failure during storing, last stage %s", last.Stage)
	}
	if len(f.events.ids) != 0 {
		t.Fatalf("no event must be published for a failed upload")
	}
}

func TestUploadPanicBecomesUnexpectedError(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.panics = true
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{}, nil)
	if res.Succeeded() || res.Error.Code != domain.CodeUnexpected {
		t.Fatalf("expected unexpected_error, got %+v", res.Error)
	}
	if f.observer.code != domain.CodeUnexpected {
		t.Fatalf("expected observer to see unexpected_error, got %s", f.observer.code)
	}
}

func TestUploadRecognitionFailureKeepsCode(t *testing.T) {
	f := newUploadFixture()
	f.recognizer.err = domain.NewError(domain.CodeInitializationFailed, "ocr.initialize", "engine unavailable", nil)
	uc := f.useCase(t, DefaultUploadConfig())

	res := uc.Upload(context.Background(), pngFile([]byte("png-bytes")), domain.UploadOptions{Language: domain.LanguageSpanish}, nil)
	if res.Succeeded() || res.Error.Code != domain.CodeInitializationFailed {
		t.Fatalf("expected initialization_failed, got %+v", res.Error)
	}
	if f.recognizer.gotLang != domain.LanguageSpanish {
		t.Fatalf("expected requested language to reach the recognizer, got %s", f.recognizer.gotLang)
	}
}

func TestUploadTextFileUsesExtractor(t *testing.T) {
	f := newUploadFixture()
	f.extractor.text = uploadInvoiceText
	uc := f.useCase(t, DefaultUploadConfig())

	file := domain.UploadFile{Name: "invoice.txt", Data: []byte(uploadInvoiceText)}
	res := uc.Upload(context.Background(), file, domain.UploadOptions{}, f.record)
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	doc := res.Document
	if doc.MimeType != "text/plain" || doc.Recognition.Source != "text_layer" || doc.Recognition.Confidence != 100 {
		t.Fatalf("unexpected document: mime=%s recognition=%+v", doc.MimeType, doc.Recognition)
	}
	if doc.Classification.Type != domain.TypeInvoice {
		t.Fatalf("expected invoice, got %s", doc.Classification.Type)
	}
	if f.recognizer.calls != 0 || f.images.prepared != 0 || f.extractor.calls != 1 {
		t.Fatalf("expected extractor path only, got recognizer=%d prepare=%d extractor=%d",
			f.recognizer.calls, f.images.prepared, f.extractor.calls)
	}
}
