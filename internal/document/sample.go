package document

import (
	"github.com/inamate/canvas/internal/typeid"
)

// NewSampleScene returns a small scene with one element of each shape kind
// and a caption, used for new playground sessions.
func NewSampleScene() Scene {
	return Scene{
		{
			ID:     typeid.NewElementID(),
			Name:   "Card",
			X:      200,
			Y:      200,
			Width:  200,
			Height: 150,
			Style: Style{
				Fill: "#e94560", Stroke: "#000000", StrokeWidth: 2, Opacity: 1,
			},
			Data: RectData{},
		},
		{
			ID:     typeid.NewElementID(),
			Name:   "Dot",
			X:      520,
			Y:      240,
			Width:  240,
			Height: 240,
			Style: Style{
				Fill: "#0f3460", Stroke: "#16213e", StrokeWidth: 2, Opacity: 1,
			},
			Data: EllipseData{Radius: 120},
		},
		{
			ID:     typeid.NewElementID(),
			Name:   "Badge",
			X:      900,
			Y:      200,
			Width:  160,
			Height: 160,
			Style: Style{
				Fill: "#f5a623", Stroke: "#c78400", StrokeWidth: 2, Opacity: 1,
			},
			Data: StarData{OuterRadius: 80, InnerRadius: 40, PointCount: 5},
		},
		{
			ID:     typeid.NewElementID(),
			Name:   "Caption",
			X:      200,
			Y:      500,
			Width:  400,
			Height: 40,
			Style: Style{
				Fill: "#1a1a2e", Opacity: 1,
			},
			Data: TextData{Content: "Hello, canvas", FontSize: 32, FontFamily: "Go", Align: AlignLeft},
		},
	}
}
