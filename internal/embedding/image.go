package embedding

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// CLIP pixel normalization constants (RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImagePixels opens and preprocesses an image file. See PreprocessImage.
func LoadImagePixels(path string, size int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return PreprocessImage(f, size)
}

// PreprocessImage decodes an image, resizes its shorter side to size with bicubic
// interpolation, center-crops a size×size square and returns normalized CHW float32 pixels.
func PreprocessImage(r io.Reader, size int) ([]float32, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has zero size")
	}

	scaledW, scaledH := size, size
	if w < h {
		scaledH = (h*size + w/2) / w
	} else {
		scaledW = (w*size + h/2) / h
	}
	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)

	x0 := (scaledW - size) / 2
	y0 := (scaledH - size) / 2
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := scaled.PixOffset(x0+x, y0+y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(scaled.Pix[off+c]) / 255
				out[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out, nil
}
