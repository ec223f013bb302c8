// Package stego hides short UTF-8 texts in the least significant bits of image pixels.
//
// A message is a 4 byte big-endian length followed by the text. Every bit of the
// message is written to one pixel, most significant bit first. Gray pixels keep all
// three channels equal; colour pixels carry the bit in red, green or blue depending on
// the bit index modulo 3. Alpha is never touched.
package stego

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math/rand"
	"unicode/utf8"
)

const lengthBits = 32

var (
	ErrMessageTooLong = errors.New("message too long for image")
	ErrNoMessage      = errors.New("no hidden message found")
)

// Options selects the pixel order. Random orders are reproducible from Seed.
type Options struct {
	Random bool
	Seed   int64
}

// DefaultOptions match the server watermark settings.
var DefaultOptions = Options{Random: true, Seed: 12345}

// Hide returns a copy of img with text embedded.
func Hide(img image.Image, text string, opts Options) (*image.NRGBA, error) {
	out := toNRGBA(img)
	payload := []byte(text)
	message := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(message, uint32(len(payload)))
	copy(message[4:], payload)

	bounds := out.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if len(message)*8 > pixels {
		return nil, fmt.Errorf("%w: need %d pixels, have %d", ErrMessageTooLong, len(message)*8, pixels)
	}

	next := newPositions(pixels, opts)
	bitIndex := 0
	for _, b := range message {
		for i := 7; i >= 0; i-- {
			setBit(out, next(), bitIndex, (b>>uint(i))&1)
			bitIndex++
		}
	}
	return out, nil
}

// Extract reads a text previously embedded with the same options.
func Extract(img image.Image, opts Options) (string, error) {
	src := toNRGBA(img)
	bounds := src.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels < lengthBits {
		return "", ErrNoMessage
	}

	next := newPositions(pixels, opts)
	bitIndex := 0
	readByte := func() byte {
		var b byte
		for i := 0; i < 8; i++ {
			b = b<<1 | getBit(src, next(), bitIndex)
			bitIndex++
		}
		return b
	}

	var header [4]byte
	for i := range header {
		header[i] = readByte()
	}
	length := binary.BigEndian.Uint32(header[:])
	if uint64(length)*8 > uint64(pixels-lengthBits) {
		return "", fmt.Errorf("%w: declared length %d exceeds capacity", ErrNoMessage, length)
	}
	payload := make([]byte, length)
	for i := range payload {
		payload[i] = readByte()
	}
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrNoMessage)
	}
	return string(payload), nil
}

// Capacity returns the longest text, in bytes, that fits in img.
func Capacity(img image.Image) int {
	b := img.Bounds()
	return max(0, b.Dx()*b.Dy()/8-4)
}

// newPositions returns a generator of pixel indices. In random mode indices are
// drawn from a seeded source and never repeat, so Hide and Extract walk the exact
// same sequence.
func newPositions(pixels int, opts Options) func() int {
	if !opts.Random {
		i := -1
		return func() int {
			i++
			return i
		}
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	used := make([]bool, pixels)
	return func() int {
		for {
			p := rng.Intn(pixels)
			if !used[p] {
				used[p] = true
				return p
			}
		}
	}
}

func pixelOffset(img *image.NRGBA, pos int) int {
	w := img.Bounds().Dx()
	return (pos/w)*img.Stride + (pos%w)*4
}

func setBit(img *image.NRGBA, pos, bitIndex int, bit byte) {
	o := pixelOffset(img, pos)
	px := img.Pix[o : o+3 : o+3]
	if px[0] == px[1] && px[1] == px[2] {
		v := px[2]&0xFE | bit
		px[0], px[1], px[2] = v, v, v
		return
	}
	c := bitIndex % 3
	px[c] = px[c]&0xFE | bit
}

func getBit(img *image.NRGBA, pos, bitIndex int) byte {
	o := pixelOffset(img, pos)
	px := img.Pix[o : o+3 : o+3]
	if px[0] == px[1] && px[1] == px[2] {
		return px[2] & 1
	}
	return px[bitIndex%3] & 1
}

// toNRGBA copies img into a zero-origin NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
