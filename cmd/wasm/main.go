//go:build js && wasm

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"syscall/js"

	"github.com/inamate/canvas/internal/command"
	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/geom"
)

var sess *engine.Session

func main() {
	sess = engine.NewSession()

	// Create the engine API object
	canvasEngine := js.Global().Get("Object").New()

	// --- Commands (frontend → engine) ---
	canvasEngine.Set("execute", js.FuncOf(execute))
	canvasEngine.Set("loadDocument", js.FuncOf(loadDocument))
	canvasEngine.Set("loadSampleDocument", js.FuncOf(loadSampleDocument))
	canvasEngine.Set("placeImage", js.FuncOf(placeImage))

	// --- Queries (frontend ← engine) ---
	canvasEngine.Set("render", js.FuncOf(render))
	canvasEngine.Set("getState", js.FuncOf(getState))
	canvasEngine.Set("getDocument", js.FuncOf(getDocument))
	canvasEngine.Set("hitTest", js.FuncOf(hitTest))

	// Register on global scope
	js.Global().Set("canvasEngine", canvasEngine)

	// Signal that WASM is ready
	js.Global().Set("canvasWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func fail(err error) js.Value {
	return js.ValueOf(map[string]interface{}{"error": err.Error(), "code": command.Code(err)})
}

func success(result any) js.Value {
	out := map[string]interface{}{"ok": true}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fail(err)
		}
		out["result"] = string(data)
	}
	return js.ValueOf(out)
}

// --- Command Handlers ---

// execute takes a JSON command: {"command": "...", "args": {...}}.
func execute(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail(fmt.Errorf("%w: missing command JSON", command.ErrBadArgs))
	}
	var cmd command.Command
	if err := json.Unmarshal([]byte(args[0].String()), &cmd); err != nil {
		return fail(fmt.Errorf("%w: %v", command.ErrBadArgs, err))
	}
	if cmd.Name == command.ImagePlace {
		return placeFromCommand(cmd)
	}
	out, err := command.Apply(sess, cmd)
	if err != nil {
		return fail(err)
	}
	return success(out.Result)
}

func loadDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail(fmt.Errorf("%w: missing document JSON", command.ErrBadArgs))
	}
	scene, err := document.Unmarshal([]byte(args[0].String()))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", command.ErrBadArgs, err))
	}
	if err := sess.LoadScene(scene); err != nil {
		return fail(err)
	}
	return success(nil)
}

func loadSampleDocument(this js.Value, args []js.Value) interface{} {
	if err := sess.LoadScene(document.NewSampleScene()); err != nil {
		return fail(err)
	}
	return success(nil)
}

// placeImage adds an image the page has already loaded:
// {"source": {"url": ...}, "naturalWidth": w, "naturalHeight": h, "box": {...}}.
// The browser owns the pixels, so the element carries no handle.
func placeImage(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail(fmt.Errorf("%w: missing image JSON", command.ErrBadArgs))
	}
	var req struct {
		Source        document.ImageSource `json:"source"`
		NaturalWidth  float64              `json:"naturalWidth"`
		NaturalHeight float64              `json:"naturalHeight"`
		Box           geom.Rect            `json:"box"`
	}
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return fail(fmt.Errorf("%w: %v", command.ErrBadArgs, err))
	}
	if req.NaturalWidth <= 0 || req.NaturalHeight <= 0 {
		return fail(fmt.Errorf("%w: natural size must be positive", engine.ErrInvalidGeometry))
	}
	out := command.Placed(sess, engine.ImageResult{
		Source:        req.Source,
		NaturalWidth:  req.NaturalWidth,
		NaturalHeight: req.NaturalHeight,
	}, req.Box)
	return success(out.Result)
}

// placeFromCommand handles image.place with inline bytes. Remote sources
// cannot be fetched without blocking the JS event loop; use placeImage.
func placeFromCommand(cmd command.Command) js.Value {
	args, err := command.DecodePlace(cmd)
	if err != nil {
		return fail(err)
	}
	if len(args.Source.Data) == 0 {
		return fail(fmt.Errorf("%w: only inline image data is supported here", command.ErrBadArgs))
	}
	img, _, err := image.Decode(bytes.NewReader(args.Source.Data))
	if err != nil {
		return fail(fmt.Errorf("%w: decode image: %v", command.ErrBadArgs, err))
	}
	b := img.Bounds()
	out := command.Placed(sess, engine.ImageResult{
		Handle:        img,
		NaturalWidth:  float64(b.Dx()),
		NaturalHeight: float64(b.Dy()),
	}, args.Box)
	return success(out.Result)
}

// --- Query Handlers ---

func render(this js.Value, args []js.Value) interface{} {
	data, err := engine.DrawCommandsToJSON(sess.Render())
	if err != nil {
		return js.ValueOf("[]")
	}
	return js.ValueOf(data)
}

type state struct {
	Revision        uint64               `json:"revision"`
	Selection       []string             `json:"selection"`
	SelectionBounds geom.Rect            `json:"selectionBounds"`
	CanUndo         bool                 `json:"canUndo"`
	CanRedo         bool                 `json:"canRedo"`
	Viewport        engine.ViewportState `json:"viewport"`
	Gesture         bool                 `json:"gesture"`
	Elements        int                  `json:"elements"`
}

func getState(this js.Value, args []js.Value) interface{} {
	data, err := json.Marshal(state{
		Revision:        sess.Revision(),
		Selection:       sess.Selection(),
		SelectionBounds: sess.SelectionBounds(),
		CanUndo:         sess.CanUndo(),
		CanRedo:         sess.CanRedo(),
		Viewport:        sess.Viewport().State(),
		Gesture:         sess.GestureActive(),
		Elements:        sess.Len(),
	})
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}

func getDocument(this js.Value, args []js.Value) interface{} {
	data, err := document.Marshal(sess.Scene())
	if err != nil {
		return fail(err)
	}
	return js.ValueOf(string(data))
}

// hitTest takes screen coordinates and returns the topmost element id or "".
func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("")
	}
	id, _ := sess.HitTestScreen(geom.Point{X: args[0].Float(), Y: args[1].Float()})
	return js.ValueOf(id)
}
