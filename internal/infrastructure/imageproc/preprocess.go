package imageproc

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

type Options struct {
	MaxWidth  int
	MaxHeight int
	Denoise   bool
	Stretch   bool
	Binarize  bool
	// ClipPercent is the share of histogram mass ignored at each end when stretching.
	ClipPercent float64
}

func DefaultOptions() Options {
	return Options{
		MaxWidth:    2000,
		MaxHeight:   2000,
		Denoise:     true,
		Stretch:     true,
		Binarize:    true,
		ClipPercent: 1,
	}
}

// Preprocess applies the enabled steps in order: resize, denoise, contrast
// stretch, binarization. src is never modified.
func Preprocess(src image.Image, opts Options) *image.NRGBA {
	img := toNRGBA(src)
	if opts.MaxWidth > 0 || opts.MaxHeight > 0 {
		img = Resize(img, opts.MaxWidth, opts.MaxHeight)
	}
	if opts.Denoise {
		img = MedianDenoise(img)
	}
	if opts.Stretch {
		img = StretchContrast(img, opts.ClipPercent)
	}
	if opts.Binarize {
		img, _ = Binarize(img)
	}
	return img
}

// FitDimensions scales w×h down proportionally so neither side exceeds its
// maximum. A non-positive maximum leaves that side unconstrained.
func FitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	if scale >= 1 {
		return w, h
	}
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return max(nw, 1), max(nh, 1)
}

func Resize(src *image.NRGBA, maxW, maxH int) *image.NRGBA {
	b := src.Bounds()
	nw, nh := FitDimensions(b.Dx(), b.Dy(), maxW, maxH)
	if nw == b.Dx() && nh == b.Dy() {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// MedianDenoise replaces every interior pixel with the median of its 3×3 red
// neighbourhood, written to all three colour channels. Border pixels are kept.
func MedianDenoise(src *image.NRGBA) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := cloneNRGBA(src)
	if w < 3 || h < 3 {
		return dst
	}

	var window [9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				row := (y + dy) * src.Stride
				for dx := -1; dx <= 1; dx++ {
					window[n] = src.Pix[row+(x+dx)*4]
					n++
				}
			}
			sort.Slice(window[:], func(i, j int) bool { return window[i] < window[j] })
			m := window[4]
			i := y*dst.Stride + x*4
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = m, m, m
		}
	}
	return dst
}

// StretchContrast rescales channels linearly so that the luma range left after
// clipping clipPercent of the histogram at each end maps to [0,255].
func StretchContrast(src *image.NRGBA, clipPercent float64) *image.NRGBA {
	hist, total := lumaHistogram(src)
	dst := cloneNRGBA(src)
	if total == 0 {
		return dst
	}
	clip := int(float64(total) * clipPercent / 100)

	low, high := 0, 255
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		if cum > clip {
			low = i
			break
		}
	}
	cum = 0
	for i := 255; i >= 0; i-- {
		cum += hist[i]
		if cum > clip {
			high = i
			break
		}
	}
	if high <= low {
		return dst
	}

	var lut [256]uint8
	span := float64(high - low)
	for v := 0; v < 256; v++ {
		scaled := math.Round(float64(v-low) * 255 / span)
		lut[v] = uint8(math.Max(0, math.Min(255, scaled)))
	}
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = lut[dst.Pix[i]]
		dst.Pix[i+1] = lut[dst.Pix[i+1]]
		dst.Pix[i+2] = lut[dst.Pix[i+2]]
	}
	return dst
}

// OtsuThreshold returns the luma threshold maximizing between-class variance.
// Ties keep the lowest threshold; a single-valued image yields 0.
func OtsuThreshold(src *image.NRGBA) uint8 {
	hist, total := lumaHistogram(src)
	if total == 0 {
		return 0
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var (
		sumB     float64
		wB       int
		best     float64
		selected int
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			selected = t
		}
	}
	return uint8(selected)
}

// Binarize maps pixels with luma above the Otsu threshold to white, the rest to black.
func Binarize(src *image.NRGBA) (*image.NRGBA, uint8) {
	t := OtsuThreshold(src)
	dst := cloneNRGBA(src)
	for i := 0; i < len(dst.Pix); i += 4 {
		v := uint8(0)
		if luma(dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2]) > t {
			v = 255
		}
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = v, v, v
	}
	return dst, t
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

func lumaHistogram(img *image.NRGBA) ([256]int, int) {
	var hist [256]int
	total := 0
	for i := 0; i < len(img.Pix); i += 4 {
		hist[luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])]++
		total++
	}
	return hist, total
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := &image.NRGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
