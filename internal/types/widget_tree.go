package types

import (
	"encoding/json"
	"strconv"
)

// FlexibleFloat unmarshals from either a JSON number or a JSON string,
// since different Flutter SDK versions emit layout-explorer numeric
// fields in either form. A JSON null decodes to Valid=false, which is
// distinct from a zero value.
type FlexibleFloat struct {
	Value float64
	Valid bool
}

func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.Value, f.Valid = 0, false
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.Value, f.Valid = num, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.Value, f.Valid = 0, false
		return nil
	}
	f.Value, f.Valid = parsed, true
	return nil
}

func (f FlexibleFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// DiagnosticsNode is a VM Service widget-inspector response node. It
// tolerates unknown fields (Extra) and nested children of the same shape.
type DiagnosticsNode struct {
	Description      string            `json:"description"`
	ValueID          string            `json:"valueId,omitempty"`
	HasChildren      bool              `json:"hasChildren"`
	Children         []DiagnosticsNode `json:"children,omitempty"`
	Properties       []DiagnosticsNode `json:"properties,omitempty"`
	CreationLocation *CreationLocation `json:"creationLocation,omitempty"`

	// Extra carries any fields this struct does not model by name
	// (e.g. layout-explorer render fields), so deserialization never
	// fails on an unrecognized key.
	Extra map[string]json.RawMessage `json:"-"`
}

// CreationLocation is the source location a widget was constructed at.
type CreationLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// UnmarshalJSON implements tolerant decoding: known fields populate the
// named struct fields, everything else lands in Extra.
func (n *DiagnosticsNode) UnmarshalJSON(data []byte) error {
	type alias DiagnosticsNode
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*n = DiagnosticsNode(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"description": true, "valueId": true, "hasChildren": true,
		"children": true, "properties": true, "creationLocation": true,
	}
	n.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			n.Extra[k] = v
		}
	}
	return nil
}

// BoxConstraints is a parsed `"BoxConstraints(...)"` description string
// from the layout explorer, e.g. "BoxConstraints(0.0<=w<=400.0, 0.0<=h<=600.0)".
type BoxConstraints struct {
	MinWidth, MaxWidth   float64
	MinHeight, MaxHeight float64
}

// WidgetSize is a parsed width/height pair from a layout-explorer node.
type WidgetSize struct {
	Width, Height float64
}

// LayoutInfo is the layout-explorer-derived data for one widget: its
// description plus (when present) constraints, size, and flex
// properties. FlexFactor being absent (Valid=false) is distinct from
// a flex factor of zero.
type LayoutInfo struct {
	Description *string
	Constraints *BoxConstraints
	Size        *WidgetSize
	FlexFactor  FlexibleFloat
	FlexFit     *string
}
