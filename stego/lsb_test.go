package stego

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colourImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y*5 + 1), B: uint8(x + y + 2), A: 255})
		}
	}
	return img
}

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 3)
	}
	return img
}

func TestHideExtract(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		text string
		opts Options
	}{
		{
			name: "sequential colour",
			img:  colourImage(32, 32),
			text: "hidden message",
			opts: Options{},
		},
		{
			name: "random colour",
			img:  colourImage(32, 32),
			text: "hidden message",
			opts: DefaultOptions,
		},
		{
			name: "random gray",
			img:  grayImage(40, 40),
			text: "上传自客户端",
			opts: Options{Random: true, Seed: 7},
		},
		{
			name: "empty text",
			img:  colourImage(8, 8),
			text: "",
			opts: Options{},
		},
		{
			name: "non zero origin",
			img:  colourImage(40, 40).SubImage(image.Rect(5, 5, 35, 35)),
			text: "offset",
			opts: Options{Random: true, Seed: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Hide(tt.img, tt.text, tt.opts)
			require.NoError(t, err)
			got, err := Extract(out, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.text, got)
		})
	}
}

func TestHide_PreservesSourceAndAlpha(t *testing.T) {
	src := colourImage(16, 16)
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	before := append([]uint8(nil), src.Pix...)

	out, err := Hide(src, "abc", Options{})
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
	assert.Equal(t, uint8(128), out.NRGBAAt(0, 0).A)

	// only least significant bits may change
	for i := range out.Pix {
		assert.LessOrEqual(t, absDiff(out.Pix[i], src.Pix[i]), uint8(1))
	}
}

func TestHide_GrayStaysGray(t *testing.T) {
	out, err := Hide(grayImage(20, 20), "gray", Options{Random: true, Seed: 3})
	require.NoError(t, err)
	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, out.Pix[i], out.Pix[i+1])
		assert.Equal(t, out.Pix[i+1], out.Pix[i+2])
	}
}

func TestHide_TooLong(t *testing.T) {
	img := colourImage(8, 8) // 64 pixels: 8 bytes including the length
	_, err := Hide(img, strings.Repeat("x", 5), Options{})
	assert.ErrorIs(t, err, ErrMessageTooLong)
	_, err = Hide(img, strings.Repeat("x", Capacity(img)), Options{})
	assert.NoError(t, err)
}

func TestExtract_NoMessage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xFF // all ones: the declared length is 0xFFFFFFFF
	}
	_, err := Extract(img, Options{})
	assert.ErrorIs(t, err, ErrNoMessage)

	_, err = Extract(image.NewNRGBA(image.Rect(0, 0, 2, 2)), Options{})
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestNewPositions_Distinct(t *testing.T) {
	next := newPositions(100, Options{Random: true, Seed: 99})
	seen := mapset.NewThreadUnsafeSet[int]()
	for i := 0; i < 100; i++ {
		p := next()
		assert.True(t, p >= 0 && p < 100)
		seen.Add(p)
	}
	assert.Equal(t, 100, seen.Cardinality())

	again := newPositions(100, Options{Random: true, Seed: 99})
	first := newPositions(100, Options{Random: true, Seed: 99})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first(), again())
	}
}

func TestBMP_RoundTrip(t *testing.T) {
	out, err := Hide(colourImage(24, 24), "through bmp", DefaultOptions)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeBMP(&buf, out))
	decoded, err := DecodeBMP(&buf)
	require.NoError(t, err)
	got, err := Extract(decoded, DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, "through bmp", got)

	path := filepath.Join(t.TempDir(), "img.bmp")
	require.NoError(t, SaveBMP(out, path))
	loaded, err := LoadBMP(path)
	require.NoError(t, err)
	got, err = Extract(loaded, DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, "through bmp", got)

	_, err = DecodeBMP(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestIsCarrier(t *testing.T) {
	assert.True(t, IsCarrier("a.bmp"))
	assert.True(t, IsCarrier("dir/A.BMP"))
	assert.False(t, IsCarrier("a.png"))
	assert.False(t, IsCarrier("bmp"))
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
