package engine

import (
	"errors"

	"github.com/inamate/canvas/internal/document"
)

var (
	ErrNotFound        = errors.New("element not found")
	ErrLocked          = errors.New("element is locked")
	ErrInvalidGeometry = document.ErrInvalidGeometry
	ErrKindMismatch    = errors.New("field does not apply to element kind")
	ErrGestureActive   = errors.New("gesture already in progress")
	ErrNoGesture       = errors.New("no gesture in progress")
	ErrUnknownGesture  = errors.New("unknown gesture")
)
