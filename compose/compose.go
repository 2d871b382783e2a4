// Package compose decodes fetched artifacts and lays them out side by side.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	// formats ComfyUI save nodes produce
	_ "image/gif"
	_ "image/jpeg"
)

// ErrNoImages is returned when there is nothing to compose
var ErrNoImages = errors.New("no images to compose")

// Decode decodes a PNG, JPEG or GIF image. For animated GIFs only the first frame is returned.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// DecodeImages decodes every blob, failing on the first one that is not an image
func DecodeImages(blobs [][]byte) ([]image.Image, error) {
	retv := make([]image.Image, 0, len(blobs))
	for i, b := range blobs {
		img, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("decoding image %d: %w", i, err)
		}
		retv = append(retv, img)
	}
	return retv, nil
}

// Horizontal pastes images left to right onto one canvas. The canvas is as wide
// as all images together and as tall as the tallest. Each image is aligned to the
// top edge and the uncovered area stays opaque black. Alpha is dropped: pasted
// pixels keep their colour and become opaque.
func Horizontal(images []image.Image) (*image.RGBA, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	width, height := 0, 0
	for _, img := range images {
		b := img.Bounds()
		width += b.Dx()
		if b.Dy() > height {
			height = b.Dy()
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	x := 0
	for _, img := range images {
		paste(canvas, img, x)
		x += img.Bounds().Dx()
	}
	return canvas, nil
}

// paste copies img to canvas at (x0, 0) with the alpha channel discarded
func paste(canvas *image.RGBA, img image.Image, x0 int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			canvas.SetRGBA(x0+x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
