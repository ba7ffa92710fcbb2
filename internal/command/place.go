package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

// ImageRef names the image to place. The host decides how to acquire it.
type ImageRef struct {
	AssetID string `json:"assetId,omitempty"`
	URL     string `json:"url,omitempty"`
	Data    []byte `json:"data,omitempty"` // base64 in JSON
}

// PlaceArgs are the arguments of ImagePlace.
type PlaceArgs struct {
	Source ImageRef  `json:"source"`
	Box    geom.Rect `json:"box"`
}

// DecodePlace parses the arguments of an ImagePlace command.
func DecodePlace(cmd Command) (PlaceArgs, error) {
	args, err := decode[PlaceArgs](cmd.Args)
	if err != nil {
		return PlaceArgs{}, err
	}
	src := args.Source
	if len(src.Data) == 0 && src.AssetID == "" && src.URL == "" {
		return PlaceArgs{}, fmt.Errorf("%w: empty image source", ErrBadArgs)
	}
	if !args.Box.IsFinite() {
		return PlaceArgs{}, fmt.Errorf("%w: box", ErrBadArgs)
	}
	return args, nil
}

// Placed completes an ImagePlace command once the image is available.
func Placed(s *engine.Session, img engine.ImageResult, box geom.Rect) Outcome {
	id := s.PlaceImage(img, box)
	return Outcome{Result: map[string]string{"id": id}, Render: true}
}

// Error codes reported to clients.
const (
	CodeNotFound        = "not_found"
	CodeLocked          = "locked"
	CodeInvalidGeometry = "invalid_geometry"
	CodeKindMismatch    = "kind_mismatch"
	CodeGesture         = "gesture"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

// Code maps an Apply error to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrLocked):
		return CodeLocked
	case errors.Is(err, engine.ErrInvalidGeometry):
		return CodeInvalidGeometry
	case errors.Is(err, engine.ErrKindMismatch):
		return CodeKindMismatch
	case errors.Is(err, engine.ErrGestureActive), errors.Is(err, engine.ErrNoGesture), errors.Is(err, engine.ErrUnknownGesture):
		return CodeGesture
	case errors.Is(err, ErrBadArgs), errors.Is(err, ErrUnknownCommand):
		return CodeBadRequest
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return CodeBadRequest
	}
	return CodeInternal
}
