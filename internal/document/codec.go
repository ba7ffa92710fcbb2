package document

import (
	"encoding/json"
	"fmt"
)

// FormatVersion is the version written into serialized documents.
const FormatVersion = 1

// File is the serialized form of a scene: an ordered list of plain
// element records.
type File struct {
	Version  int             `json:"version"`
	Elements []ElementRecord `json:"elements"`
}

// ElementRecord is the wire/storage shape of an Element. Variant data is
// kept raw until the kind is known.
type ElementRecord struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Name        string          `json:"name"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	Width       float64         `json:"width"`
	Height      float64         `json:"height"`
	Opacity     float64         `json:"opacity"`
	Locked      bool            `json:"locked"`
	Fill        string          `json:"fill,omitempty"`
	Stroke      string          `json:"stroke,omitempty"`
	StrokeWidth float64         `json:"strokeWidth,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Record converts an element to its serialized shape.
func Record(e Element) (ElementRecord, error) {
	if e.Data == nil {
		return ElementRecord{}, fmt.Errorf("element %s has no variant data", e.ID)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return ElementRecord{}, fmt.Errorf("marshal %s data: %w", e.ID, err)
	}
	return ElementRecord{
		ID:          e.ID,
		Kind:        e.Kind(),
		Name:        e.Name,
		X:           e.X,
		Y:           e.Y,
		Width:       e.Width,
		Height:      e.Height,
		Opacity:     e.Style.Opacity,
		Locked:      e.Locked,
		Fill:        e.Style.Fill,
		Stroke:      e.Style.Stroke,
		StrokeWidth: e.Style.StrokeWidth,
		Data:        data,
	}, nil
}

// Element converts a record back into an element.
func (r ElementRecord) Element() (Element, error) {
	data, err := DecodeVariant(r.Kind, r.Data)
	if err != nil {
		return Element{}, fmt.Errorf("element %s: %w", r.ID, err)
	}
	return Element{
		ID:     r.ID,
		Name:   r.Name,
		X:      r.X,
		Y:      r.Y,
		Width:  r.Width,
		Height: r.Height,
		Style: Style{
			Fill:        r.Fill,
			Stroke:      r.Stroke,
			StrokeWidth: r.StrokeWidth,
			Opacity:     r.Opacity,
		},
		Locked: r.Locked,
		Data:   data,
	}, nil
}

// DecodeVariant decodes the variant data of an element of the given kind.
// Empty data decodes to the zero value of the kind.
func DecodeVariant(kind Kind, raw json.RawMessage) (Variant, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	switch kind {
	case KindRect:
		return RectData{}, nil
	case KindEllipse:
		var d EllipseData
		err := json.Unmarshal(raw, &d)
		return d, err
	case KindStar:
		var d StarData
		err := json.Unmarshal(raw, &d)
		return d, err
	case KindText:
		var d TextData
		err := json.Unmarshal(raw, &d)
		return d, err
	case KindImage:
		var d ImageData
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("unknown element kind %q, want one of %v", kind, Kinds)
	}
}

// Marshal serializes a scene in paint order.
func Marshal(s Scene) ([]byte, error) {
	f := File{Version: FormatVersion, Elements: make([]ElementRecord, 0, len(s))}
	for _, e := range s {
		rec, err := Record(e)
		if err != nil {
			return nil, err
		}
		f.Elements = append(f.Elements, rec)
	}
	return json.Marshal(f)
}

// Unmarshal parses and validates a serialized scene.
func Unmarshal(data []byte) (Scene, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if f.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported document version %d", f.Version)
	}

	scene := make(Scene, 0, len(f.Elements))
	for _, rec := range f.Elements {
		e, err := rec.Element()
		if err != nil {
			return nil, err
		}
		scene = append(scene, e)
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	return scene, nil
}
