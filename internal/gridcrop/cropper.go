// Package gridcrop extracts deterministic, template-keyed sub-images for
// graded characters, using only the standard image codecs: no third-party
// image library exists anywhere in the corpus this core was modeled on,
// so cropping and PNG re-encoding are implemented directly against
// image and image/png, in the same spirit as golang.org/x/image/draw's use
// for resizing in internal/imageprep.
package gridcrop

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/taxonomy"
)

// Attach crops and base64-PNG-encodes the cell for each analysis whose
// row/column falls inside the template grid, mutating analyses in place.
// Decode failure or an out-of-range analysis is non-fatal: the batch
// result still comes back, just without that crop.
func Attach(rawImage []byte, tpl taxonomy.Template, analyses []gradetypes.CharAnalysis) {
	img, _, err := image.Decode(bytes.NewReader(rawImage))
	if err != nil {
		slog.Warn("gridcrop: source image decode failed, skipping crops", "error", err)
		return
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	headerPixels := int(float64(h) * tpl.HeaderRatio)
	gridHeight := h - headerPixels
	if tpl.GridCols <= 0 || tpl.GridRows <= 0 || gridHeight <= 0 {
		return
	}
	cellW := w / tpl.GridCols
	cellH := gridHeight / tpl.GridRows

	for i := range analyses {
		a := &analyses[i]
		if a.Row < 1 || a.Row > tpl.GridRows || a.Column < 1 || a.Column > tpl.GridCols {
			slog.Debug("gridcrop: analysis row/col out of range, skipping", "row", a.Row, "col", a.Column)
			continue
		}

		rect, ok := cellRect(bounds, headerPixels, cellW, cellH, a.Row, a.Column)
		if !ok {
			continue
		}

		encoded, err := encodePNGBase64(img, rect)
		if err != nil {
			slog.Debug("gridcrop: crop encode failed, skipping", "error", err)
			continue
		}
		a.CharImageBase64 = encoded
	}
}

func cellRect(bounds image.Rectangle, headerPixels, cellW, cellH, row, col int) (image.Rectangle, bool) {
	x := (col - 1) * cellW
	y := headerPixels + (row-1)*cellH

	inset := int(float64(min(cellW, cellH)) * 0.05)
	x0, y0 := x+inset, y+inset
	x1, y1 := x+cellW-inset, y+cellH-inset

	rect := image.Rect(x0, y0, x1, y1).Add(bounds.Min).Intersect(bounds)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return image.Rectangle{}, false
	}
	return rect, true
}

func encodePNGBase64(img image.Image, rect image.Rectangle) (string, error) {
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	var cropped image.Image
	if ok {
		cropped = sub.SubImage(rect)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				dst.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
			}
		}
		cropped = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
