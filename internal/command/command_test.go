package command

import (
	"encoding/json"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

func newSession() *engine.Session {
	n := 0
	return engine.NewSession(engine.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("el_%d", n)
	}))
}

func cmd(t *testing.T, name string, args any) Command {
	t.Helper()
	if args == nil {
		return Command{Name: name}
	}
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return Command{Name: name, Args: raw}
}

func apply(t *testing.T, s *engine.Session, name string, args any) Outcome {
	t.Helper()
	out, err := Apply(s, cmd(t, name, args))
	require.NoError(t, err, name)
	return out
}

func addRect(t *testing.T, s *engine.Session, x, y float64) string {
	t.Helper()
	out := apply(t, s, ElementAdd, map[string]any{
		"kind":   "rectangle",
		"bounds": map[string]float64{"x": x, "y": y, "width": 100, "height": 50},
	})
	return out.Result.(map[string]string)["id"]
}

func TestCommandParsesWireShape(t *testing.T) {
	var c Command
	require.NoError(t, json.Unmarshal([]byte(`{"command":"element.remove","args":{"id":"el_1"}}`), &c))
	assert.Equal(t, ElementRemove, c.Name)
	assert.JSONEq(t, `{"id":"el_1"}`, string(c.Args))
}

func TestAddUpdateRemove(t *testing.T) {
	s := newSession()

	id := addRect(t, s, 10, 20)
	assert.Equal(t, "el_1", id)
	assert.Equal(t, 1, s.Len())

	out := apply(t, s, ElementUpdate, map[string]any{"id": id, "patch": map[string]any{"x": 50, "fill": "#ff0000"}})
	assert.True(t, out.Render)
	e, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, 50.0, e.X)
	assert.Equal(t, "#ff0000", e.Style.Fill)

	out = apply(t, s, ElementGet, map[string]string{"id": id})
	assert.False(t, out.Render)
	rec := out.Result.(document.ElementRecord)
	assert.Equal(t, document.KindRect, rec.Kind)

	out = apply(t, s, ElementRemove, map[string]string{"id": id})
	assert.Equal(t, map[string]bool{"removed": true}, out.Result)
	out = apply(t, s, ElementRemove, map[string]string{"id": id})
	assert.Equal(t, map[string]bool{"removed": false}, out.Result)
	assert.False(t, out.Render)
}

func TestAddWithVariantData(t *testing.T) {
	s := newSession()

	out := apply(t, s, ElementAdd, map[string]any{
		"kind":   "text",
		"bounds": map[string]float64{"x": 0, "y": 0, "width": 200, "height": 40},
		"data":   map[string]any{"content": "Hello", "fontSize": 24},
	})
	e, ok := s.Get(out.Result.(map[string]string)["id"])
	require.True(t, ok)
	text, ok := e.Data.(document.TextData)
	require.True(t, ok)
	assert.Equal(t, "Hello", text.Content)
	assert.Equal(t, 24.0, text.FontSize)
}

func TestAddWithPartialStyleKeepsDefaults(t *testing.T) {
	s := newSession()

	out := apply(t, s, ElementAdd, map[string]any{
		"kind":   "rectangle",
		"bounds": map[string]float64{"x": 0, "y": 0, "width": 40, "height": 40},
		"style":  map[string]any{"fill": "#ff0000"},
	})
	e, ok := s.Get(out.Result.(map[string]string)["id"])
	require.True(t, ok)
	assert.Equal(t, "#ff0000", e.Style.Fill)
	assert.Equal(t, 1.0, e.Style.Opacity)

	cmds := s.Render()
	require.Len(t, cmds, 1)
	assert.Equal(t, 1.0, cmds[0].Opacity)

	out = apply(t, s, ElementAdd, map[string]any{
		"kind":  "ellipse",
		"style": map[string]any{"opacity": 0.25, "strokeWidth": 3},
	})
	e, ok = s.Get(out.Result.(map[string]string)["id"])
	require.True(t, ok)
	assert.Equal(t, 0.25, e.Style.Opacity)
	assert.Equal(t, 3.0, e.Style.StrokeWidth)
	assert.NotEmpty(t, e.Style.Fill)
}

func TestZOrderCommands(t *testing.T) {
	s := newSession()
	a := addRect(t, s, 0, 0)
	b := addRect(t, s, 10, 10)
	c := addRect(t, s, 20, 20)

	apply(t, s, ElementBringToFront, map[string]string{"id": a})
	assert.Equal(t, []string{b, c, a}, s.Scene().IDs())

	apply(t, s, ElementSendBackward, map[string]string{"id": a})
	assert.Equal(t, []string{b, a, c}, s.Scene().IDs())

	apply(t, s, ElementReorder, map[string]any{"id": c, "index": 0})
	assert.Equal(t, []string{c, b, a}, s.Scene().IDs())
}

func TestSelectionCommands(t *testing.T) {
	s := newSession()
	a := addRect(t, s, 0, 0)
	b := addRect(t, s, 200, 0)

	apply(t, s, SelectionSet, map[string]any{"ids": []string{a, b}})
	assert.ElementsMatch(t, []string{a, b}, s.Selection())

	out := apply(t, s, SelectionBounds, nil)
	assert.Equal(t, geom.Rect{X: 0, Y: 0, Width: 300, Height: 50}, out.Result)

	apply(t, s, SelectionToggle, map[string]string{"id": a})
	assert.Equal(t, []string{b}, s.Selection())

	apply(t, s, SelectionClear, nil)
	assert.Empty(t, s.Selection())

	out = apply(t, s, SelectionAt, map[string]any{"x": 10, "y": 10})
	assert.Equal(t, hitResult{ID: a, Hit: true}, out.Result)
	assert.Equal(t, []string{a}, s.Selection())

	apply(t, s, SelectionAll, nil)
	out = apply(t, s, SelectionDelete, nil)
	assert.Equal(t, map[string]int{"removed": 2}, out.Result)
	assert.Equal(t, 0, s.Len())
}

func TestHistoryCommands(t *testing.T) {
	s := newSession()
	addRect(t, s, 0, 0)

	out := apply(t, s, HistoryUndo, nil)
	assert.Equal(t, map[string]bool{"applied": true}, out.Result)
	assert.Equal(t, 0, s.Len())

	out = apply(t, s, HistoryUndo, nil)
	assert.Equal(t, map[string]bool{"applied": false}, out.Result)
	assert.False(t, out.Render)

	apply(t, s, HistoryRedo, nil)
	assert.Equal(t, 1, s.Len())
}

func TestViewportCommands(t *testing.T) {
	s := newSession()

	out := apply(t, s, ViewportZoom, map[string]any{"zoom": 150})
	assert.Equal(t, 150.0, out.Result.(engine.ViewportState).Zoom)

	out = apply(t, s, ViewportZoom, map[string]any{"zoom": 1000})
	assert.Equal(t, float64(engine.DefaultZoomMax), out.Result.(engine.ViewportState).Zoom)

	apply(t, s, ViewportReset, nil)
	out = apply(t, s, ViewportZoom, map[string]any{"zoom": 200, "anchor": map[string]float64{"x": 100, "y": 100}})
	st := out.Result.(engine.ViewportState)
	assert.Equal(t, geom.Point{X: -100, Y: -100}, st.Pan)

	apply(t, s, ViewportReset, nil)
	out = apply(t, s, ViewportPan, map[string]any{"dx": 5, "dy": -3})
	assert.Equal(t, geom.Point{X: 5, Y: -3}, out.Result.(engine.ViewportState).Pan)
}

func TestGestureCommandsUseScreenCoordinates(t *testing.T) {
	s := newSession()
	id := addRect(t, s, 0, 0)
	apply(t, s, SelectionSet, map[string]any{"ids": []string{id}})
	apply(t, s, ViewportZoom, map[string]any{"zoom": 200})

	apply(t, s, GestureBegin, map[string]any{"kind": "move", "x": 20, "y": 20})
	apply(t, s, GestureUpdate, map[string]any{"x": 60, "y": 20})
	out := apply(t, s, GestureCommit, nil)
	assert.Equal(t, map[string]bool{"recorded": true}, out.Result)

	e, _ := s.Get(id)
	// 40 screen pixels at 200% is 20 scene units.
	assert.Equal(t, 20.0, e.X)
}

func TestSceneCommands(t *testing.T) {
	s := newSession()
	addRect(t, s, 0, 0)

	out := apply(t, s, SceneGet, nil)
	doc := out.Result.(json.RawMessage)

	other := newSession()
	apply(t, other, SceneLoad, map[string]any{"document": doc})
	assert.True(t, s.Scene().Equal(other.Scene()))
	assert.False(t, other.CanUndo())

	out = apply(t, other, SceneHitTest, map[string]any{"x": 5, "y": 5})
	assert.Equal(t, hitResult{ID: "el_1", Hit: true}, out.Result)
	out = apply(t, other, SceneHitTest, map[string]any{"x": 500, "y": 500})
	assert.Equal(t, hitResult{}, out.Result)
}

func TestPlace(t *testing.T) {
	s := newSession()

	_, err := DecodePlace(cmd(t, ImagePlace, map[string]any{"source": map[string]any{}}))
	assert.ErrorIs(t, err, ErrBadArgs)

	args, err := DecodePlace(cmd(t, ImagePlace, map[string]any{
		"source": map[string]any{"url": "https://example.com/a.png"},
		"box":    map[string]float64{"x": 0, "y": 0, "width": 100, "height": 100},
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", args.Source.URL)

	out := Placed(s, engine.ImageResult{
		Source:        document.ImageSource{URL: args.Source.URL},
		Handle:        image.NewRGBA(image.Rect(0, 0, 200, 100)),
		NaturalWidth:  200,
		NaturalHeight: 100,
	}, args.Box)
	e, ok := s.Get(out.Result.(map[string]string)["id"])
	require.True(t, ok)
	assert.Equal(t, geom.Rect{X: 0, Y: 25, Width: 100, Height: 50}, e.Bounds())
}

func TestErrorCodes(t *testing.T) {
	s := newSession()
	id := addRect(t, s, 0, 0)
	free := addRect(t, s, 0, 0)
	apply(t, s, ElementUpdate, map[string]any{"id": id, "patch": map[string]any{"locked": true}})

	tests := []struct {
		name string
		cmd  Command
		code string
	}{
		{"unknown command", cmd(t, "element.explode", nil), CodeBadRequest},
		{"malformed args", Command{Name: ElementRemove, Args: json.RawMessage(`{"id":`)}, CodeBadRequest},
		{"missing id", cmd(t, ElementRemove, map[string]string{}), CodeBadRequest},
		{"missing kind", cmd(t, ElementAdd, map[string]any{}), CodeBadRequest},
		{"not found", cmd(t, ElementUpdate, map[string]any{"id": "el_99", "patch": map[string]any{"x": 1}}), CodeNotFound},
		{"locked", cmd(t, ElementUpdate, map[string]any{"id": id, "patch": map[string]any{"x": 1}}), CodeLocked},
		{"kind mismatch", cmd(t, ElementUpdate, map[string]any{"id": free, "patch": map[string]any{"radius": 3}}), CodeKindMismatch},
		{"no gesture", cmd(t, GestureCommit, nil), CodeGesture},
		{"bad gesture kind", cmd(t, GestureBegin, map[string]any{"kind": "spin"}), CodeGesture},
		{"selection of missing id", cmd(t, SelectionSet, map[string]any{"ids": []string{"el_99"}}), CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(s, tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.code, Code(err))
		})
	}
	assert.Equal(t, CodeInternal, Code(fmt.Errorf("disk on fire")))
}
