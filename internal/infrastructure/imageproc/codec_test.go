package imageproc

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func TestDimensionsRejectsGarbageAsCorrupted(t *testing.T) {
	p := NewProcessor(DefaultOptions(), 1600, 80)
	_, _, err := p.Dimensions([]byte("definitely not an image"))
	if !domain.IsKind(err, domain.ErrCorrupted) {
		t.Fatalf("expected corrupted, got %v", err)
	}
}

func TestCompressShrinksNoisyPNG(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := fill(128, 128, func(int, int) uint8 { return uint8(rng.Intn(256)) })
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	p := NewProcessor(DefaultOptions(), 1600, 60)
	out, mime, err := p.Compress(buf.Bytes(), "image/png")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if mime != "image/jpeg" || len(out) >= buf.Len() {
		t.Fatalf("expected smaller jpeg, got %s with %d >= %d bytes", mime, len(out), buf.Len())
	}
}

func TestCompressKeepsOriginalWhenNotSmaller(t *testing.T) {
	src := fill(8, 8, func(int, int) uint8 { return 128 })
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 5}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	original := buf.Bytes()

	p := NewProcessor(DefaultOptions(), 1600, 100)
	out, mime, err := p.Compress(original, "image/jpeg")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !bytes.Equal(out, original) || mime != "image/jpeg" {
		t.Fatalf("expected original bytes to be kept")
	}
}

func TestPrepareProducesPNG(t *testing.T) {
	src := fill(40, 20, func(x, _ int) uint8 { return uint8(x * 6) })
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	p := NewProcessor(DefaultOptions(), 0, 0)
	out, err := p.Prepare(buf.Bytes())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestSampleCropsTopBandAndDownscales(t *testing.T) {
	src := fill(1500, 2000, func(_, y int) uint8 {
		if y < 800 {
			return 0
		}
		return 255
	})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	p := NewProcessor(DefaultOptions(), 0, 0)
	out, err := p.Sample(buf.Bytes())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1000 || b.Dy() != 533 {
		t.Fatalf("expected a 1000x533 top band, got %v", b)
	}

	if _, err := p.Sample([]byte("not an image")); !domain.IsKind(err, domain.ErrCorrupted) {
		t.Fatalf("expected corrupted, got %v", err)
	}
}
