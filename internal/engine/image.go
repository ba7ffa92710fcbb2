package engine

import (
	"image"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
)

// ImageResult is what the image collaborator hands back once a source has
// been decoded. The engine only keeps the reference.
type ImageResult struct {
	Source        document.ImageSource
	Handle        image.Image
	NaturalWidth  float64
	NaturalHeight float64
}

// PlaceImage adds an image element sized to keep the image's aspect ratio
// inside box, centered in it. An empty box places the image at its natural
// size at the box origin.
func (s *Session) PlaceImage(img ImageResult, box geom.Rect) string {
	bounds := geom.Rect{X: box.X, Y: box.Y, Width: img.NaturalWidth, Height: img.NaturalHeight}
	if !box.IsEmpty() {
		bounds = geom.FitWithin(img.NaturalWidth, img.NaturalHeight, box)
	}
	return s.AddElement(CreateSpec{
		Kind:   document.KindImage,
		Bounds: bounds,
		Data: document.ImageData{
			Source:        img.Source,
			NaturalWidth:  img.NaturalWidth,
			NaturalHeight: img.NaturalHeight,
			Handle:        img.Handle,
		},
	})
}
