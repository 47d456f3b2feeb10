package gridcrop

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/taxonomy"
)

// TestCellRect_MatchesWorkedExample reproduces the S5 scenario exactly:
// a 1000x800 image, a 4x5 grid with a 5% header band, cell (row=2, col=3).
func TestCellRect_MatchesWorkedExample(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 800)
	headerPixels := int(float64(800) * 0.05)
	gridHeight := 800 - headerPixels
	cellW := 1000 / 5
	cellH := gridHeight / 4

	rect, ok := cellRect(bounds, headerPixels, cellW, cellH, 2, 3)
	require.True(t, ok)
	assert.Equal(t, 409, rect.Min.X)
	assert.Equal(t, 239, rect.Min.Y)
	assert.Equal(t, 182, rect.Dx())
	assert.Equal(t, 172, rect.Dy())
}

func TestCellRect_OutOfBoundsClampsAgainstImage(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	_, ok := cellRect(bounds, 0, 50, 50, 1, 10)
	assert.False(t, ok, "a cell entirely outside the image bounds must be rejected")
}

func TestAttach_SkipsOutOfRangeRowColumn(t *testing.T) {
	img := solidImage(1000, 800, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	tpl := taxonomy.Template{GridRows: 4, GridCols: 5, HeaderRatio: 0.05}
	analyses := []gradetypes.CharAnalysis{{Row: 99, Column: 1}}

	Attach(img, tpl, analyses)
	assert.Empty(t, analyses[0].CharImageBase64)
}

func TestAttach_ProducesDecodablePNGOfExpectedSize(t *testing.T) {
	img := solidImage(1000, 800, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	tpl := taxonomy.Template{GridRows: 4, GridCols: 5, HeaderRatio: 0.05}
	analyses := []gradetypes.CharAnalysis{{Row: 2, Column: 3}}

	Attach(img, tpl, analyses)
	require.NotEmpty(t, analyses[0].CharImageBase64)
}

func TestAttach_DegenerateGridIsNoOp(t *testing.T) {
	img := solidImage(100, 100, color.RGBA{A: 255})
	tpl := taxonomy.Template{GridRows: 0, GridCols: 0, HeaderRatio: 0}
	analyses := []gradetypes.CharAnalysis{{Row: 1, Column: 1}}

	Attach(img, tpl, analyses)
	assert.Empty(t, analyses[0].CharImageBase64)
}

func solidImage(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
