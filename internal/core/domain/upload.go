package domain

import (
	"errors"
	"time"
)

type UploadFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

func (f UploadFile) Size() int64 { return int64(len(f.Data)) }

type UploadOptions struct {
	Location StorageLocation `json:"location"`
	// LocalOnly forbids any call to the external reasoning service.
	LocalOnly bool     `json:"local_only"`
	Language  Language `json:"language"`
	// ShareImage allows the document image itself to be sent for enhancement.
	ShareImage bool `json:"share_image"`
}

type Stage string

const (
	StageValidating  Stage = "validating"
	StageCompressing Stage = "compressing"
	StageRecognizing Stage = "recognizing"
	StageEnhancing   Stage = "enhancing"
	StageStoring     Stage = "storing"
	StageComplete    Stage = "complete"
)

// Percent is the progress reported when a stage is entered.
func (s Stage) Percent() int {
	switch s {
	case StageValidating:
		return 10
	case StageCompressing:
		return 20
	case StageRecognizing:
		return 40
	case StageEnhancing:
		return 60
	case StageStoring:
		return 80
	case StageComplete:
		return 100
	default:
		return 0
	}
}

type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type ProgressFunc func(Progress)

type UploadStatus string

const (
	UploadSucceeded UploadStatus = "success"
	UploadFailed    UploadStatus = "failed"
)

type ErrorInfo struct {
	Code              ErrorCode `json:"code"`
	Message           string    `json:"message"`
	Recoverable       bool      `json:"recoverable"`
	RetryAfterSeconds float64   `json:"retry_after_seconds,omitempty"`
}

// NewErrorInfo flattens err into its client-visible form.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	code := CodeOf(err)
	msg := err.Error()
	var typed *Error
	if errors.As(err, &typed) && typed.Reason != "" {
		msg = typed.Reason
	}
	info := &ErrorInfo{
		Code:        code,
		Message:     msg,
		Recoverable: code.Recoverable(),
	}
	if d := RetryAfterOf(err); d > 0 {
		info.RetryAfterSeconds = d.Seconds()
	}
	return info
}

type UploadResult struct {
	Status   UploadStatus  `json:"status"`
	Document *Document     `json:"document,omitempty"`
	Error    *ErrorInfo    `json:"error,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (r UploadResult) Succeeded() bool { return r.Status == UploadSucceeded }
