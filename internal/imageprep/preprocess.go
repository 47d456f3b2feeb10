// Package imageprep downsizes and recompresses a submitted photograph
// before it is sent upstream, trading fidelity for upstream token cost.
// It uses golang.org/x/image/draw for the bilinear scale — the one
// non-stdlib image dependency anywhere in the corpus this core draws
// from, and the only "extended standard library" module needed here.
package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

const jpegQuality = 85 // quality 0.85

// Preconditioned is the outcome of Run: bytes ready to send upstream.
type Preconditioned struct {
	Bytes    []byte
	Width    int
	Height   int
	Resized  bool
}

// Run decodes raw, rescales it to fit within maxDimension on its longest
// side (preserving aspect ratio) if needed, flattens any alpha onto
// opaque white, and re-encodes as JPEG. A decode failure is non-fatal:
// the original bytes are returned unchanged so the caller can still try
// sending them upstream.
func Run(raw []byte, maxDimension int) Preconditioned {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		slog.Warn("imageprep: decode failed, forwarding original bytes", "error", err)
		return Preconditioned{Bytes: raw}
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	resized := false
	if maxDimension > 0 && max(w, h) > maxDimension {
		scale := float64(maxDimension) / float64(max(w, h))
		newW := int(float64(w) * scale)
		newH := int(float64(h) * scale)
		if newW < 1 {
			newW = 1
		}
		if newH < 1 {
			newH = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		src = dst
		w, h = newW, newH
		resized = true
	}

	flat := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, src.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		slog.Warn("imageprep: encode failed, forwarding original bytes", "error", err)
		return Preconditioned{Bytes: raw}
	}

	return Preconditioned{Bytes: buf.Bytes(), Width: w, Height: h, Resized: resized}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
