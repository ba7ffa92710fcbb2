// Package command applies named, JSON-encoded commands to an engine
// session. It is the shared vocabulary of the WebSocket protocol and the
// WebAssembly bridge.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgs        = errors.New("bad arguments")
)

// Command names.
const (
	ElementAdd          = "element.add"
	ElementRemove       = "element.remove"
	ElementUpdate       = "element.update"
	ElementReorder      = "element.reorder"
	ElementBringToFront = "element.bringToFront"
	ElementSendToBack   = "element.sendToBack"
	ElementBringForward = "element.bringForward"
	ElementSendBackward = "element.sendBackward"
	ElementGet          = "element.get"

	SelectionSet    = "selection.set"
	SelectionToggle = "selection.toggle"
	SelectionAll    = "selection.all"
	SelectionClear  = "selection.clear"
	SelectionAt     = "selection.at"
	SelectionDelete = "selection.delete"
	SelectionBounds = "selection.bounds"

	HistoryUndo = "history.undo"
	HistoryRedo = "history.redo"

	ViewportZoom   = "viewport.zoom"
	ViewportZoomBy = "viewport.zoomBy"
	ViewportPan    = "viewport.pan"
	ViewportReset  = "viewport.reset"

	GestureBegin  = "gesture.begin"
	GestureUpdate = "gesture.update"
	GestureCommit = "gesture.commit"
	GestureCancel = "gesture.cancel"

	SceneHitTest = "scene.hitTest"
	SceneLoad    = "scene.load"
	SceneGet     = "scene.get"

	// ImagePlace needs image acquisition, which may block; hosts handle
	// it themselves with DecodePlace and Placed.
	ImagePlace = "image.place"
)

// Command is one request against a session.
type Command struct {
	Name string          `json:"command"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Outcome is the result of a successful command.
type Outcome struct {
	Result any  // JSON-encodable, may be nil
	Render bool // the view changed and should be redrawn
}

type addArgs struct {
	Kind   document.Kind       `json:"kind"`
	Name   string              `json:"name"`
	Bounds geom.Rect           `json:"bounds"`
	Style  document.StylePatch `json:"style"`
	Data   json.RawMessage     `json:"data"`
}

type idArgs struct {
	ID string `json:"id"`
}

type idsArgs struct {
	IDs []string `json:"ids"`
}

type updateArgs struct {
	ID    string         `json:"id"`
	Patch document.Patch `json:"patch"`
}

type reorderArgs struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// pointArgs carries a screen-space pointer position.
type pointArgs struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Additive bool    `json:"additive"`
}

type zoomArgs struct {
	Zoom   float64     `json:"zoom"`
	Anchor *geom.Point `json:"anchor"` // screen point kept fixed
}

type zoomByArgs struct {
	Delta float64 `json:"delta"`
}

type panArgs struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type gestureArgs struct {
	Kind   engine.GestureKind `json:"kind"`
	Handle engine.Handle      `json:"handle"`
	X      float64            `json:"x"`
	Y      float64            `json:"y"`
}

type loadArgs struct {
	Document json.RawMessage `json:"document"`
}

type hitResult struct {
	ID  string `json:"id,omitempty"`
	Hit bool   `json:"hit"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return v, nil
}

// Apply runs cmd against s. Errors wrap the engine sentinels, ErrBadArgs
// or ErrUnknownCommand.
func Apply(s *engine.Session, cmd Command) (Outcome, error) {
	switch cmd.Name {
	case ElementAdd:
		args, err := decode[addArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		spec, err := args.spec()
		if err != nil {
			return Outcome{}, err
		}
		id := s.AddElement(spec)
		return Outcome{Result: map[string]string{"id": id}, Render: true}, nil

	case ElementRemove:
		return withID(cmd, func(id string) (Outcome, error) {
			removed, err := s.RemoveElement(id)
			return Outcome{Result: map[string]bool{"removed": removed}, Render: removed}, err
		})

	case ElementUpdate:
		args, err := decode[updateArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Render: true}, s.UpdateElement(args.ID, args.Patch)

	case ElementReorder:
		args, err := decode[reorderArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Render: true}, s.Reorder(args.ID, args.Index)

	case ElementBringToFront:
		return withID(cmd, func(id string) (Outcome, error) { return Outcome{Render: true}, s.BringToFront(id) })
	case ElementSendToBack:
		return withID(cmd, func(id string) (Outcome, error) { return Outcome{Render: true}, s.SendToBack(id) })
	case ElementBringForward:
		return withID(cmd, func(id string) (Outcome, error) { return Outcome{Render: true}, s.BringForward(id) })
	case ElementSendBackward:
		return withID(cmd, func(id string) (Outcome, error) { return Outcome{Render: true}, s.SendBackward(id) })

	case ElementGet:
		return withID(cmd, func(id string) (Outcome, error) {
			e, ok := s.Get(id)
			if !ok {
				return Outcome{}, fmt.Errorf("get %s: %w", id, engine.ErrNotFound)
			}
			rec, err := document.Record(e)
			return Outcome{Result: rec}, err
		})

	case SelectionSet:
		args, err := decode[idsArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Render: true}, s.SetSelection(args.IDs...)

	case SelectionToggle:
		return withID(cmd, func(id string) (Outcome, error) { return Outcome{Render: true}, s.ToggleSelect(id) })

	case SelectionAll:
		s.SelectAll()
		return Outcome{Render: true}, nil

	case SelectionClear:
		s.ClearSelection()
		return Outcome{Render: true}, nil

	case SelectionAt:
		args, err := decode[pointArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		id, hit := s.SelectAt(geom.Point{X: args.X, Y: args.Y}, args.Additive)
		return Outcome{Result: hitResult{ID: id, Hit: hit}, Render: true}, nil

	case SelectionDelete:
		n := s.DeleteSelected()
		return Outcome{Result: map[string]int{"removed": n}, Render: n > 0}, nil

	case SelectionBounds:
		return Outcome{Result: s.SelectionBounds()}, nil

	case HistoryUndo:
		applied := s.Undo()
		return Outcome{Result: map[string]bool{"applied": applied}, Render: applied}, nil

	case HistoryRedo:
		applied := s.Redo()
		return Outcome{Result: map[string]bool{"applied": applied}, Render: applied}, nil

	case ViewportZoom:
		args, err := decode[zoomArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		if args.Anchor != nil {
			s.Viewport().ZoomAt(*args.Anchor, args.Zoom)
		} else {
			s.Viewport().SetZoom(args.Zoom)
		}
		return Outcome{Result: s.Viewport().State(), Render: true}, nil

	case ViewportZoomBy:
		args, err := decode[zoomByArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		s.Viewport().ZoomBy(args.Delta)
		return Outcome{Result: s.Viewport().State(), Render: true}, nil

	case ViewportPan:
		args, err := decode[panArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		s.Viewport().Pan(args.DX, args.DY)
		return Outcome{Result: s.Viewport().State(), Render: true}, nil

	case ViewportReset:
		s.Viewport().Reset()
		return Outcome{Result: s.Viewport().State(), Render: true}, nil

	case GestureBegin:
		args, err := decode[gestureArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		p := s.Viewport().ScreenToScene(geom.Point{X: args.X, Y: args.Y})
		return Outcome{Render: true}, s.BeginGesture(args.Kind, args.Handle, p)

	case GestureUpdate:
		args, err := decode[pointArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		p := s.Viewport().ScreenToScene(geom.Point{X: args.X, Y: args.Y})
		return Outcome{Render: true}, s.UpdateGesture(p)

	case GestureCommit:
		recorded, err := s.CommitGesture()
		return Outcome{Result: map[string]bool{"recorded": recorded}, Render: true}, err

	case GestureCancel:
		return Outcome{Render: true}, s.CancelGesture()

	case SceneHitTest:
		args, err := decode[pointArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		id, hit := s.HitTestScreen(geom.Point{X: args.X, Y: args.Y})
		return Outcome{Result: hitResult{ID: id, Hit: hit}}, nil

	case SceneLoad:
		args, err := decode[loadArgs](cmd.Args)
		if err != nil {
			return Outcome{}, err
		}
		scene, err := document.Unmarshal(args.Document)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrBadArgs, err)
		}
		return Outcome{Render: true}, s.LoadScene(scene)

	case SceneGet:
		data, err := document.Marshal(s.Scene())
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Result: json.RawMessage(data)}, nil
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
}

func withID(cmd Command, fn func(id string) (Outcome, error)) (Outcome, error) {
	args, err := decode[idArgs](cmd.Args)
	if err != nil {
		return Outcome{}, err
	}
	if args.ID == "" {
		return Outcome{}, fmt.Errorf("%w: missing id", ErrBadArgs)
	}
	return fn(args.ID)
}

func (a addArgs) spec() (engine.CreateSpec, error) {
	if a.Kind == "" {
		return engine.CreateSpec{}, fmt.Errorf("%w: missing kind", ErrBadArgs)
	}
	data, err := document.DecodeVariant(a.Kind, a.Data)
	if err != nil {
		return engine.CreateSpec{}, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return engine.CreateSpec{
		Kind:   a.Kind,
		Name:   a.Name,
		Bounds: a.Bounds,
		Style:  a.Style,
		Data:   data,
	}, nil
}
