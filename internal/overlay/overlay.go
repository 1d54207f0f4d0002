// Package overlay draws face detection annotations onto a frame surface.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/facetrack/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label is the caption drawn above every detected face.
const Label = "Face Detected"

var (
	BoxColor      = color.RGBA{0x00, 0xff, 0x00, 0xff}
	LandmarkColor = color.RGBA{0xff, 0x00, 0x00, 0xff}
	LabelColor    = color.RGBA{0x00, 0xff, 0x00, 0xff}
)

const (
	lineWidth      = 3
	landmarkRadius = 2
	labelOffset    = 10
)

// Render clears dst, copies frame onto it (when non-nil) and draws one box, its landmarks and a
// label per detection. It keeps no state between calls and only touches dst.
func Render(dst *image.RGBA, frame image.Image, detections []types.Detection) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	if frame != nil {
		draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
	}

	for _, d := range detections {
		strokeRect(dst, d.Box.Rect(), BoxColor)
		for _, p := range d.Landmarks {
			fillCircle(dst, int(p.X), int(p.Y), landmarkRadius, LandmarkColor)
		}
		drawLabel(dst, int(d.Box.X), int(d.Box.Y)-labelOffset, Label)
	}
}

// strokeRect outlines r with a band lineWidth pixels wide, centred on the rectangle edge.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	lo := lineWidth / 2
	hi := lineWidth - lo
	fillRect(img, image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Min.Y+hi), c) // Top
	fillRect(img, image.Rect(r.Min.X-lo, r.Max.Y-lo, r.Max.X+hi, r.Max.Y+hi), c) // Bottom
	fillRect(img, image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Min.X+hi, r.Max.Y+hi), c) // Left
	fillRect(img, image.Rect(r.Max.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi), c) // Right
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	// Clip rect to image bounds to prevent panics
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}

	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		rowStart := (y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < rect.Dx(); x++ {
			off := rowStart + x*4
			pix[off] = c.R
			pix[off+1] = c.G
			pix[off+2] = c.B
			pix[off+3] = c.A
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			p := image.Pt(cx+dx, cy+dy)
			if p.In(img.Bounds()) {
				img.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(LabelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
