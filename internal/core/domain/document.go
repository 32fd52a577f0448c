package domain

import "time"

// StorageLocation selects which persistence backends receive a document.
type StorageLocation string

const (
	LocationLocal StorageLocation = "local"
	LocationCloud StorageLocation = "cloud"
	LocationBoth  StorageLocation = "both"
)

func (l StorageLocation) Valid() bool {
	switch l {
	case LocationLocal, LocationCloud, LocationBoth:
		return true
	default:
		return false
	}
}

// Document is the stored outcome of one successful upload.
type Document struct {
	ID             string               `json:"id"`
	Filename       string               `json:"filename"`
	MimeType       string               `json:"mime_type"`
	SizeBytes      int64                `json:"size_bytes"`
	Location       StorageLocation      `json:"location"`
	Text           string               `json:"text"`
	Recognition    RecognitionSummary   `json:"recognition"`
	Classification ClassificationResult `json:"classification"`
	Fields         ExtractedFields      `json:"fields"`
	Enhanced       bool                 `json:"enhanced"`
	CreatedAt      time.Time            `json:"created_at"`
}

// RecognitionSummary is the persisted part of a RecognitionResult.
type RecognitionSummary struct {
	Confidence float64  `json:"confidence"`
	Language   Language `json:"language"`
	DurationMS int64    `json:"duration_ms"`
	Source     string   `json:"source"`
}
