package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

type UploadConfig struct {
	MaxFileBytes      int64
	MinImageDimension int
	AllowedMIMETypes  []string
	// Enhancement is considered when either confidence is below its threshold.
	OCRConfidenceThreshold            float64
	ClassificationConfidenceThreshold float64
	DefaultLocation                   domain.StorageLocation
}

func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileBytes:      20 << 20,
		MinImageDimension: 100,
		AllowedMIMETypes: []string{
			"image/jpeg", "image/png", "image/webp", "image/gif", "image/bmp", "image/tiff",
			"application/pdf", "text/plain",
		},
		OCRConfidenceThreshold:            80,
		ClassificationConfidenceThreshold: 0.5,
		DefaultLocation:                   domain.LocationLocal,
	}
}

// UploadDeps are the collaborators of the upload pipeline. Enhancer, Events
// and Observer are optional.
type UploadDeps struct {
	Images      ports.ImageProcessor
	Recognizer  ports.TextRecognizer
	Extractor   ports.TextExtractor
	Classifier  ports.DocumentClassifier
	Fields      ports.FieldExtractor
	Anonymizer  ports.TextAnonymizer
	Enhancer    ports.DocumentEnhancer
	Persistence ports.DocumentPersistence
	Events      ports.EventPublisher
	Observer    PipelineObserver
	Logger      *slog.Logger
}

// UploadUseCase runs validate, compress, recognize, enhance and store for one file.
type UploadUseCase struct {
	cfg     UploadConfig
	deps    UploadDeps
	allowed map[string]struct{}
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewUploadUseCase(cfg UploadConfig, deps UploadDeps) *UploadUseCase {
	def := DefaultUploadConfig()
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = def.MaxFileBytes
	}
	if cfg.MinImageDimension < 0 {
		cfg.MinImageDimension = 0
	}
	if len(cfg.AllowedMIMETypes) == 0 {
		cfg.AllowedMIMETypes = def.AllowedMIMETypes
	}
	if !cfg.DefaultLocation.Valid() {
		cfg.DefaultLocation = def.DefaultLocation
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMETypes))
	for _, m := range cfg.AllowedMIMETypes {
		allowed[normalizeMIME(m)] = struct{}{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadUseCase{
		cfg:     cfg,
		deps:    deps,
		allowed: allowed,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// uploadRun carries the per-upload progress state.
type uploadRun struct {
	uc         *UploadUseCase
	progress   domain.ProgressFunc
	file       string
	percent    int
	stage      domain.Stage
	stageStart time.Time
	warnings   []string
}

func (r *uploadRun) enter(stage domain.Stage, message string) {
	now := r.uc.now()
	if r.stage != "" && r.uc.deps.Observer != nil {
		r.uc.deps.Observer.ObserveStage(r.stage, now.Sub(r.stageStart))
	}
	r.stage = stage
	r.stageStart = now
	if p := stage.Percent(); p > r.percent {
		r.percent = p
	}
	r.uc.logger.Debug("upload_stage", "file", r.file, "stage", string(stage), "percent", r.percent)
	if r.progress != nil {
		r.progress(domain.Progress{Stage: stage, Percent: r.percent, Message: message})
	}
}

// Upload never returns an error; every failure ends up in the result.
func (uc *UploadUseCase) Upload(ctx context.Context, file domain.UploadFile, opts domain.UploadOptions, progress domain.ProgressFunc) (result domain.UploadResult) {
	started := uc.now()
	run := &uploadRun{uc: uc, progress: progress, file: file.Name}

	defer func() {
		if rec := recover(); rec != nil {
			uc.logger.Error("upload_panic", "file", file.Name, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			result = uc.failed(run, domain.NewError(domain.CodeUnexpected, "upload", "internal error", fmt.Errorf("panic: %v", rec)))
		}
		result.Duration = uc.now().Sub(started)
		if uc.deps.Observer != nil {
			if run.stage != "" {
				uc.deps.Observer.ObserveStage(run.stage, uc.now().Sub(run.stageStart))
			}
			code := domain.ErrorCode("")
			if result.Error != nil {
				code = result.Error.Code
			}
			uc.deps.Observer.ObserveUpload(result.Status, code, result.Duration)
		}
	}()

	doc, err := uc.upload(ctx, run, file, uc.normalizeOptions(opts))
	if err != nil {
		return uc.failed(run, err)
	}
	run.enter(domain.StageComplete, "Document stored")
	uc.logger.Info("upload_completed",
		"document_id", doc.ID,
		"file", file.Name,
		"type", string(doc.Classification.Type),
		"confidence", doc.Classification.Confidence,
		"enhanced", doc.Enhanced,
	)
	return domain.UploadResult{Status: domain.UploadSucceeded, Document: doc, Warnings: run.warnings}
}

func (uc *UploadUseCase) failed(run *uploadRun, err error) domain.UploadResult {
	uc.logger.Warn("upload_failed", "file", run.file, "stage", string(run.stage), "code", string(domain.CodeOf(err)), "error", err)
	return domain.UploadResult{
		Status:   domain.UploadFailed,
		Error:    domain.NewErrorInfo(err),
		Warnings: run.warnings,
	}
}

func (uc *UploadUseCase) normalizeOptions(opts domain.UploadOptions) domain.UploadOptions {
	if opts.Location == "" {
		opts.Location = uc.cfg.DefaultLocation
	}
	if opts.Language == "" {
		opts.Language = domain.LanguageAuto
	}
	return opts
}

func (uc *UploadUseCase) upload(ctx context.Context, run *uploadRun, file domain.UploadFile, opts domain.UploadOptions) (*domain.Document, error) {
	run.enter(domain.StageValidating, "Validating file")
	mimeType, err := uc.validate(file, opts)
	if err != nil {
		return nil, err
	}
	isImage := strings.HasPrefix(mimeType, "image/")

	run.enter(domain.StageCompressing, "Compressing image")
	blob, blobMIME, err := uc.compress(file.Data, mimeType, isImage)
	if err != nil {
		return nil, err
	}

	run.enter(domain.StageRecognizing, "Recognizing text")
	recognized, source, err := uc.recognize(ctx, file.Data, mimeType, isImage, opts.Language)
	if err != nil {
		return nil, err
	}
	classification := uc.deps.Classifier.Classify(recognized.Text)
	fields := uc.deps.Fields.Extract(recognized.Text, classification.Type)
	if recognized.Language == "" || recognized.Language == domain.LanguageAuto {
		recognized.Language = classification.Language
	}

	doc := &domain.Document{
		ID:        uc.newID(),
		Filename:  file.Name,
		MimeType:  blobMIME,
		SizeBytes: int64(len(blob)),
		Location:  opts.Location,
		Text:      recognized.Text,
		Recognition: domain.RecognitionSummary{
			Confidence: recognized.Confidence,
			Language:   recognized.Language,
			DurationMS: recognized.Duration.Milliseconds(),
			Source:     source,
		},
		Classification: classification,
		Fields:         fields,
		CreatedAt:      uc.now().UTC(),
	}

	uc.enhance(ctx, run, doc, opts, blob, blobMIME, isImage)

	run.enter(domain.StageStoring, "Storing document")
	if err := uc.deps.Persistence.Put(ctx, opts.Location, doc, blob); err != nil {
		return nil, err
	}
	if uc.deps.Events != nil {
		if err := uc.deps.Events.PublishDocumentProcessed(ctx, doc); err != nil {
			uc.logger.Warn("document_event_failed", "document_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

func (uc *UploadUseCase) validate(file domain.UploadFile, opts domain.UploadOptions) (string, error) {
	const op = "upload.validate"
	if !opts.Location.Valid() {
		return "", domain.NewError(domain.CodeValidationFailed, op, fmt.Sprintf("unknown storage location %q", opts.Location), nil)
	}
	if opts.Language != domain.LanguageAuto && !opts.Language.Supported() {
		return "", domain.NewError(domain.CodeValidationFailed, op, fmt.Sprintf("unsupported language %q", opts.Language), nil)
	}
	if file.Size() == 0 {
		return "", domain.NewError(domain.CodeValidationFailed, op, "file is empty", domain.ErrCorrupted)
	}
	if file.Size() > uc.cfg.MaxFileBytes {
		return "", domain.NewError(domain.CodeFileTooLarge, op,
			fmt.Sprintf("file is %d bytes, limit is %d", file.Size(), uc.cfg.MaxFileBytes), nil)
	}

	mimeType := normalizeMIME(file.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMIME(http.DetectContentType(file.Data))
	}
	if _, ok := uc.allowed[mimeType]; !ok {
		return "", domain.NewError(domain.CodeUnsupportedFormat, op, fmt.Sprintf("file type %s is not allowed", mimeType), nil)
	}

	if strings.HasPrefix(mimeType, "image/") {
		w, h, err := uc.deps.Images.Dimensions(file.Data)
		if err != nil {
			return "", err
		}
		if w < uc.cfg.MinImageDimension || h < uc.cfg.MinImageDimension {
			return "", domain.NewError(domain.CodeValidationFailed, op,
				fmt.Sprintf("image is %dx%d, minimum is %dx%d", w, h, uc.cfg.MinImageDimension, uc.cfg.MinImageDimension), nil)
		}
	}
	return mimeType, nil
}

func (uc *UploadUseCase) compress(data []byte, mimeType string, isImage bool) ([]byte, string, error) {
	if !isImage {
		return data, mimeType, nil
	}
	out, outMIME, err := uc.deps.Images.Compress(data, mimeType)
	if err != nil {
		return nil, "", err
	}
	return out, outMIME, nil
}

func (uc *UploadUseCase) recognize(ctx context.Context, data []byte, mimeType string, isImage bool, lang domain.Language) (domain.RecognitionResult, string, error) {
	if !isImage {
		if uc.deps.Extractor == nil {
			return domain.RecognitionResult{}, "", domain.NewError(domain.CodeUnsupportedFormat, "upload.recognize", "no text extractor configured", nil)
		}
		started := uc.now()
		text, err := uc.deps.Extractor.Extract(ctx, mimeType, data)
		if err != nil {
			return domain.RecognitionResult{}, "", err
		}
		result := domain.RecognitionResult{Text: text, Duration: uc.now().Sub(started)}
		if strings.TrimSpace(text) != "" {
			result.Confidence = 100
		}
		return result, "text_layer", nil
	}

	prepared, err := uc.deps.Images.Prepare(data)
	if err != nil {
		return domain.RecognitionResult{}, "", err
	}
	result, err := uc.deps.Recognizer.Recognize(ctx, prepared, lang)
	if err != nil {
		return domain.RecognitionResult{}, "", err
	}
	return result, "ocr", nil
}

// enhance asks the reasoning service for help when local confidence is low.
// Local-only uploads never reach it, and its failures only add a warning.
func (uc *UploadUseCase) enhance(ctx context.Context, run *uploadRun, doc *domain.Document, opts domain.UploadOptions, blob []byte, blobMIME string, isImage bool) {
	if !uc.needsEnhancement(doc) {
		uc.observeEnhancement(EnhancementNotNeeded)
		return
	}
	if opts.LocalOnly {
		uc.observeEnhancement(EnhancementLocalOnly)
		return
	}
	if uc.deps.Enhancer == nil {
		uc.observeEnhancement(EnhancementNoProvider)
		return
	}

	text := doc.Text
	if uc.deps.Anonymizer != nil {
		text = uc.deps.Anonymizer.Anonymize(text)
	}
	var image []byte
	var imageMIME string
	if opts.ShareImage && isImage {
		image, imageMIME = blob, blobMIME
	}
	if strings.TrimSpace(text) == "" && image == nil {
		uc.observeEnhancement(EnhancementNotNeeded)
		return
	}

	run.enter(domain.StageEnhancing, "Enhancing low-confidence result")
	enhancement, err := uc.deps.Enhancer.Enhance(ctx, text, image, imageMIME)
	if err != nil {
		uc.observeEnhancement(EnhancementFailed)
		run.warnings = append(run.warnings, fmt.Sprintf("enhancement skipped: %s", domain.NewErrorInfo(err).Message))
		uc.logger.Warn("enhancement_failed", "file", doc.Filename, "code", string(domain.CodeOf(err)), "error", err)
		return
	}
	customFor := func(t domain.DocumentType) map[string]string {
		return uc.deps.Fields.Extract(doc.Text, t).Custom
	}
	doc.Classification, doc.Fields = mergeEnhancement(doc.Classification, doc.Fields, enhancement, customFor)
	doc.Enhanced = true
	uc.observeEnhancement(EnhancementApplied)
}

func (uc *UploadUseCase) needsEnhancement(doc *domain.Document) bool {
	return doc.Recognition.Confidence < uc.cfg.OCRConfidenceThreshold ||
		doc.Classification.Confidence < uc.cfg.ClassificationConfidenceThreshold
}

func (uc *UploadUseCase) observeEnhancement(outcome string) {
	if uc.deps.Observer != nil {
		uc.deps.Observer.ObserveEnhancement(outcome)
	}
}

func normalizeMIME(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
