// Package preview produces the small downsampled preview blob uploaded
// alongside each media file.
package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// MaxDimension bounds the longer edge of a generated raster preview.
const MaxDimension = 512

// PrefixFallbackBytes is how much of a non-raster file is kept as its
// preview when the content cannot be decoded as an image.
const PrefixFallbackBytes = 64 * 1024

// Generate returns preview bytes for the given media. Raster images
// (png/jpeg) are downscaled to fit MaxDimension and re-encoded as JPEG;
// anything else falls back to a truncated byte prefix. Output is
// deterministic for a given input.
func Generate(media []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(media))
	if err != nil {
		return prefixFallback(media), nil
	}

	scaled := downscale(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= MaxDimension && h <= MaxDimension {
		return img
	}

	scale := float64(MaxDimension) / float64(w)
	if h > w {
		scale = float64(MaxDimension) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func prefixFallback(media []byte) []byte {
	n := len(media)
	if n > PrefixFallbackBytes {
		n = PrefixFallbackBytes
	}
	out := make([]byte, n)
	copy(out, media[:n])
	return out
}
