package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Decode parses any registered image format. Undecodable input is corrupted
// and never worth retrying.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", domain.NewError(domain.CodeCorrupted, "image.decode", "image cannot be decoded", err)
	}
	return img, format, nil
}

// Processor implements the image side of the upload pipeline.
type Processor struct {
	opts         Options
	maxDimension int
	jpegQuality  int
}

func NewProcessor(opts Options, maxDimension, jpegQuality int) *Processor {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 82
	}
	return &Processor{opts: opts, maxDimension: maxDimension, jpegQuality: jpegQuality}
}

func (p *Processor) Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, domain.NewError(domain.CodeCorrupted, "image.dimensions", "image header cannot be read", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Compress re-encodes the image as JPEG within maxDimension. The original bytes
// are returned unchanged when the result would not be smaller.
func (p *Processor) Compress(data []byte, mimeType string) ([]byte, string, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	src := toNRGBA(img)
	if p.maxDimension > 0 {
		src = Resize(src, p.maxDimension, p.maxDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: p.jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	if buf.Len() >= len(data) {
		return data, mimeType, nil
	}
	return buf.Bytes(), "image/jpeg", nil
}

// Prepare decodes, preprocesses and re-encodes the image as PNG for the recognition engine.
func (p *Processor) Prepare(data []byte) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out := Preprocess(img, p.opts)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

const (
	sampleMaxSide = 1000
	sampleMinRows = 64
)

// Sample returns a small PNG of the top band of the page, where titles and
// headings usually sit, for a quick language detection pass.
func (p *Processor) Sample(data []byte) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	src := toNRGBA(img)
	b := src.Bounds()
	rows := min(b.Dy(), max(b.Dy()*2/5, sampleMinRows))
	band := src.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+rows))

	opts := p.opts
	opts.MaxWidth, opts.MaxHeight = sampleMaxSide, sampleMaxSide
	out := Preprocess(band, opts)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
