package domain

import "time"

type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageSpanish Language = "es"
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
	LanguageGerman  Language = "de"
	LanguageItalian Language = "it"
	LanguagePortug  Language = "pt"
	LanguageOther   Language = "other"
)

// SupportedLanguages lists the languages the classifier and the recognizer know about.
var SupportedLanguages = []Language{
	LanguageSpanish, LanguageEnglish, LanguageFrench, LanguageGerman, LanguageItalian, LanguagePortug,
}

func (l Language) Supported() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Token struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// RecognitionResult is the text recovered from one document. Confidence is in [0,100].
type RecognitionResult struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Tokens     []Token       `json:"tokens,omitempty"`
	Duration   time.Duration `json:"duration"`
	Language   Language      `json:"language"`
}
