package document

// Patch is a partial element update. Nil fields are left unchanged.
type Patch struct {
	Name        *string  `json:"name,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Fill        *string  `json:"fill,omitempty"`
	Stroke      *string  `json:"stroke,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	Locked      *bool    `json:"locked,omitempty"`

	// ellipse
	Radius *float64 `json:"radius,omitempty"`

	// star
	OuterRadius *float64 `json:"outerRadius,omitempty"`
	InnerRadius *float64 `json:"innerRadius,omitempty"`
	PointCount  *int     `json:"pointCount,omitempty"`

	// text
	Content    *string  `json:"content,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	Align      *Align   `json:"align,omitempty"`
}

// StylePatch is a partial style. Nil fields keep the base value.
type StylePatch struct {
	Fill        *string  `json:"fill,omitempty"`
	Stroke      *string  `json:"stroke,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
}

// Over returns base with the fields set in p replaced.
func (p StylePatch) Over(base Style) Style {
	if p.Fill != nil {
		base.Fill = *p.Fill
	}
	if p.Stroke != nil {
		base.Stroke = *p.Stroke
	}
	if p.StrokeWidth != nil {
		base.StrokeWidth = *p.StrokeWidth
	}
	if p.Opacity != nil {
		base.Opacity = *p.Opacity
	}
	return base
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// IsUnlockOnly reports whether the patch is exactly {locked: false}.
func (p Patch) IsUnlockOnly() bool {
	if p.Locked == nil || *p.Locked {
		return false
	}
	rest := p
	rest.Locked = nil
	return rest.IsEmpty()
}

// VariantKind returns the kind the patch's variant fields belong to, or ""
// if it only touches common fields. ok is false when fields of several
// kinds are mixed.
func (p Patch) VariantKind() (kind Kind, ok bool) {
	var kinds []Kind
	if p.Radius != nil {
		kinds = append(kinds, KindEllipse)
	}
	if p.OuterRadius != nil || p.InnerRadius != nil || p.PointCount != nil {
		kinds = append(kinds, KindStar)
	}
	if p.Content != nil || p.FontSize != nil || p.FontFamily != nil || p.Align != nil {
		kinds = append(kinds, KindText)
	}
	switch len(kinds) {
	case 0:
		return "", true
	case 1:
		return kinds[0], true
	default:
		return "", false
	}
}
