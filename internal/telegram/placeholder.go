package telegram

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var placeholderOnce sync.Once
var placeholderBytes []byte

// placeholderPNG is the uniform backdrop used for every screen that has no
// chart. Generated once; Telegram requires some media on photo messages and
// a constant image keeps edits cheap.
func placeholderPNG() []byte {
	placeholderOnce.Do(func() {
		const w, h = 640, 360
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		bg := color.RGBA{R: 28, G: 32, B: 38, A: 255}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, bg)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding a valid in-memory image cannot fail at runtime.
			panic(err)
		}
		placeholderBytes = buf.Bytes()
	})
	return placeholderBytes
}
