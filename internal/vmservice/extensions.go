package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/flutter-demon/fdemon/internal/types"
)

// Flutter service extension method names. All follow the
// `ext.flutter.*` namespace convention; inspector-specific methods add
// the `.inspector.` segment.
const (
	ExtRepaintRainbow        = "ext.flutter.repaintRainbow"
	ExtDebugPaint            = "ext.flutter.debugPaint"
	ExtShowPerformanceOverlay = "ext.flutter.showPerformanceOverlay"
	ExtInspectorShow         = "ext.flutter.inspector.show"

	ExtGetRootWidgetTree        = "ext.flutter.inspector.getRootWidgetTree"
	ExtGetRootWidgetSummaryTree = "ext.flutter.inspector.getRootWidgetSummaryTree"
	ExtGetDetailsSubtree        = "ext.flutter.inspector.getDetailsSubtree"
	ExtGetSelectedWidget        = "ext.flutter.inspector.getSelectedWidget"
	ExtDisposeGroup             = "ext.flutter.inspector.disposeGroup"
	ExtGetLayoutExplorerNode    = "ext.flutter.inspector.getLayoutExplorerNode"

	ExtDebugDumpApp        = "ext.flutter.debugDumpApp"
	ExtDebugDumpRenderTree = "ext.flutter.debugDumpRenderTree"
	ExtDebugDumpLayerTree  = "ext.flutter.debugDumpLayerTree"
)

// buildExtensionParams assembles the params object for a service
// extension call: isolateId plus any extra string-valued args. The VM
// Service protocol requires every extension argument to be a string,
// regardless of its logical type.
func buildExtensionParams(isolateID string, args map[string]string) map[string]string {
	params := make(map[string]string, len(args)+1)
	params["isolateId"] = isolateID
	for k, v := range args {
		params[k] = v
	}
	return params
}

// CallExtension invokes a Flutter service extension method.
func CallExtension(ctx context.Context, client *Client, method, isolateID string, args map[string]string) (json.RawMessage, error) {
	return client.Call(ctx, method, buildExtensionParams(isolateID, args))
}

// ParseBoolExtensionResponse reads the `{"enabled": "true"|"false"}`
// shape Flutter toggle extensions return. The value is always a
// string, never a JSON boolean.
func ParseBoolExtensionResponse(result json.RawMessage) (bool, error) {
	var body struct {
		Enabled *string `json:"enabled"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return false, fmt.Errorf("vmservice: parsing bool extension response: %w", err)
	}
	if body.Enabled == nil {
		return false, fmt.Errorf("vmservice: missing 'enabled' field in extension response")
	}
	return *body.Enabled == "true", nil
}

// ParseDataExtensionResponse reads the `{"data": "..."}` shape debug
// dump extensions return.
func ParseDataExtensionResponse(result json.RawMessage) (string, error) {
	var body struct {
		Data *string `json:"data"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return "", fmt.Errorf("vmservice: parsing data extension response: %w", err)
	}
	if body.Data == nil {
		return "", fmt.Errorf("vmservice: missing 'data' field in extension response")
	}
	return *body.Data, nil
}

// ToggleBoolExtension sets (enabled != nil) or queries (enabled == nil)
// a boolean debug overlay extension, returning the resulting state.
func ToggleBoolExtension(ctx context.Context, client *Client, method, isolateID string, enabled *bool) (bool, error) {
	var args map[string]string
	if enabled != nil {
		args = map[string]string{"enabled": strconv.FormatBool(*enabled)}
	}
	result, err := CallExtension(ctx, client, method, isolateID, args)
	if err != nil {
		return false, err
	}
	return ParseBoolExtensionResponse(result)
}

// DebugOverlayState is the last-known state of each debug overlay
// extension. A nil field means the state has not been queried, or the
// extension is unavailable (e.g. profile/release build).
type DebugOverlayState struct {
	RepaintRainbow     *bool
	DebugPaint         *bool
	PerformanceOverlay *bool
	WidgetInspector    *bool
}

// QueryAllOverlays queries the four overlay extensions concurrently.
// An individual failure (extension unavailable) yields a nil field
// rather than failing the whole query, since mixed-mode builds expose
// only a subset (e.g. performance overlay works in profile mode while
// the others are debug-only).
func QueryAllOverlays(ctx context.Context, client *Client, isolateID string) DebugOverlayState {
	var state DebugOverlayState
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if v, err := ToggleBoolExtension(gctx, client, ExtRepaintRainbow, isolateID, nil); err == nil {
			state.RepaintRainbow = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := ToggleBoolExtension(gctx, client, ExtDebugPaint, isolateID, nil); err == nil {
			state.DebugPaint = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := ToggleBoolExtension(gctx, client, ExtShowPerformanceOverlay, isolateID, nil); err == nil {
			state.PerformanceOverlay = &v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := ToggleBoolExtension(gctx, client, ExtInspectorShow, isolateID, nil); err == nil {
			state.WidgetInspector = &v
		}
		return nil
	})

	_ = g.Wait() // every goroutine above always returns nil; failures are captured per-field
	return state
}

// FlipOverlay reads an overlay's current state and sets it to the
// opposite, returning the new state.
func FlipOverlay(ctx context.Context, client *Client, method, isolateID string) (bool, error) {
	current, err := ToggleBoolExtension(ctx, client, method, isolateID, nil)
	if err != nil {
		return false, err
	}
	flipped := !current
	return ToggleBoolExtension(ctx, client, method, isolateID, &flipped)
}

// DebugDumpKind selects which internal Flutter tree to dump as text.
type DebugDumpKind int

const (
	DumpWidgetTree DebugDumpKind = iota
	DumpRenderTree
	DumpLayerTree
)

// Method returns the service extension method name for kind.
func (k DebugDumpKind) Method() string {
	switch k {
	case DumpWidgetTree:
		return ExtDebugDumpApp
	case DumpRenderTree:
		return ExtDebugDumpRenderTree
	case DumpLayerTree:
		return ExtDebugDumpLayerTree
	default:
		return ExtDebugDumpApp
	}
}

// AvailableInProfile reports whether this dump kind works in profile
// mode. Only the layer tree dump is debug-mode only.
func (k DebugDumpKind) AvailableInProfile() bool {
	return k != DumpLayerTree
}

// DebugDump runs a debug dump extension and returns its text.
func DebugDump(ctx context.Context, client *Client, isolateID string, kind DebugDumpKind) (string, error) {
	result, err := CallExtension(ctx, client, kind.Method(), isolateID, nil)
	if err != nil {
		return "", err
	}
	return ParseDataExtensionResponse(result)
}

// ParseDiagnosticsNodeResponse decodes a DiagnosticsNode from an
// extension result, which may be the node value directly or nested
// under a "result" wrapper depending on Flutter version.
func ParseDiagnosticsNodeResponse(result json.RawMessage) (types.DiagnosticsNode, error) {
	inner := unwrapResult(result)
	var node types.DiagnosticsNode
	if err := json.Unmarshal(inner, &node); err != nil {
		return types.DiagnosticsNode{}, fmt.Errorf("vmservice: parsing DiagnosticsNode: %w", err)
	}
	return node, nil
}

// ParseOptionalDiagnosticsNodeResponse is ParseDiagnosticsNodeResponse
// but treats a JSON null result as "nothing selected" rather than an
// error.
func ParseOptionalDiagnosticsNodeResponse(result json.RawMessage) (*types.DiagnosticsNode, error) {
	inner := unwrapResult(result)
	if string(inner) == "null" {
		return nil, nil
	}
	node, err := ParseDiagnosticsNodeResponse(result)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func unwrapResult(result json.RawMessage) json.RawMessage {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(result, &envelope); err == nil && len(envelope.Result) > 0 {
		return envelope.Result
	}
	return result
}

// GetRootWidgetTree fetches the root widget summary tree, trying the
// newer getRootWidgetTree API (Flutter 3.22+) and falling back to
// getRootWidgetSummaryTree for older SDKs.
func GetRootWidgetTree(ctx context.Context, client *Client, isolateID, objectGroup string) (types.DiagnosticsNode, error) {
	newerArgs := map[string]string{
		"objectGroup":  objectGroup,
		"isSummaryTree": "true",
		"withPreviews": "false",
	}
	result, err := CallExtension(ctx, client, ExtGetRootWidgetTree, isolateID, newerArgs)
	if err == nil {
		return ParseDiagnosticsNodeResponse(result)
	}

	olderArgs := map[string]string{"objectGroup": objectGroup}
	result, err = CallExtension(ctx, client, ExtGetRootWidgetSummaryTree, isolateID, olderArgs)
	if err != nil {
		return types.DiagnosticsNode{}, err
	}
	return ParseDiagnosticsNodeResponse(result)
}

// GetDetailsSubtree fetches the detailed subtree for a specific widget
// node up to subtreeDepth levels. Note the extension takes the value
// id under the key "arg", not "valueId".
func GetDetailsSubtree(ctx context.Context, client *Client, isolateID, valueID, objectGroup string, subtreeDepth int) (types.DiagnosticsNode, error) {
	args := map[string]string{
		"arg":           valueID,
		"objectGroup":   objectGroup,
		"subtreeDepth":  strconv.Itoa(subtreeDepth),
	}
	result, err := CallExtension(ctx, client, ExtGetDetailsSubtree, isolateID, args)
	if err != nil {
		return types.DiagnosticsNode{}, err
	}
	return ParseDiagnosticsNodeResponse(result)
}

// GetSelectedWidget returns the widget currently selected in the
// inspector overlay, or nil if nothing is selected.
func GetSelectedWidget(ctx context.Context, client *Client, isolateID, objectGroup string) (*types.DiagnosticsNode, error) {
	args := map[string]string{"objectGroup": objectGroup}
	result, err := CallExtension(ctx, client, ExtGetSelectedWidget, isolateID, args)
	if err != nil {
		return nil, err
	}
	return ParseOptionalDiagnosticsNodeResponse(result)
}

// GetLayoutExplorerNode fetches layout explorer data for a widget.
//
// The layout explorer uses different parameter keys than the other
// inspector extensions: "id" instead of "arg", and "groupName" instead
// of "objectGroup". This is a genuine inconsistency in the Flutter
// framework and must be matched exactly.
func GetLayoutExplorerNode(ctx context.Context, client *Client, isolateID, valueID, groupName string, subtreeDepth int) (json.RawMessage, error) {
	args := map[string]string{
		"id":           valueID,
		"groupName":    groupName,
		"subtreeDepth": strconv.Itoa(subtreeDepth),
	}
	return CallExtension(ctx, client, ExtGetLayoutExplorerNode, isolateID, args)
}

var boxConstraintsRe = regexp.MustCompile(`BoxConstraints\(([0-9.]+)<=w<=([0-9.]+|Infinity), ([0-9.]+)<=h<=([0-9.]+|Infinity)\)`)

// ParseBoxConstraints parses a layout-explorer constraints description
// string, e.g. "BoxConstraints(0.0<=w<=400.0, 0.0<=h<=600.0)".
func ParseBoxConstraints(description string) (types.BoxConstraints, bool) {
	m := boxConstraintsRe.FindStringSubmatch(description)
	if m == nil {
		return types.BoxConstraints{}, false
	}
	minW, _ := strconv.ParseFloat(m[1], 64)
	maxW := parseBoundOrInf(m[2])
	minH, _ := strconv.ParseFloat(m[3], 64)
	maxH := parseBoundOrInf(m[4])
	return types.BoxConstraints{MinWidth: minW, MaxWidth: maxW, MinHeight: minH, MaxHeight: maxH}, true
}

func parseBoundOrInf(s string) float64 {
	if s == "Infinity" {
		return -1 // fdemon never renders an unbounded axis as a finite width
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// ExtractLayoutInfo reads layout-explorer-specific fields (constraints,
// size, flexFactor, flexFit) out of the raw JSON alongside the already
// parsed node's description. These fields are not part of the base
// DiagnosticsNode schema, so they're read directly from raw.
func ExtractLayoutInfo(node types.DiagnosticsNode, raw json.RawMessage) types.LayoutInfo {
	var fields struct {
		Constraints *struct {
			Description string `json:"description"`
		} `json:"constraints"`
		Size *struct {
			Width  types.FlexibleFloat `json:"width"`
			Height types.FlexibleFloat `json:"height"`
		} `json:"size"`
		FlexFactor types.FlexibleFloat `json:"flexFactor"`
		FlexFit    *string             `json:"flexFit"`
	}
	_ = json.Unmarshal(raw, &fields)

	info := types.LayoutInfo{
		Description: &node.Description,
		FlexFactor:  fields.FlexFactor,
		FlexFit:     fields.FlexFit,
	}
	if fields.Constraints != nil {
		if bc, ok := ParseBoxConstraints(fields.Constraints.Description); ok {
			info.Constraints = &bc
		}
	}
	if fields.Size != nil && fields.Size.Width.Valid && fields.Size.Height.Valid {
		info.Size = &types.WidgetSize{Width: fields.Size.Width.Value, Height: fields.Size.Height.Value}
	}
	return info
}

// ExtractLayoutTree reads the root node plus each direct child's
// layout info from a getLayoutExplorerNode response. Index 0 is the
// root; the rest are children in order.
func ExtractLayoutTree(raw json.RawMessage) ([]types.LayoutInfo, error) {
	resultValue := unwrapResult(raw)

	root, err := ParseDiagnosticsNodeResponse(resultValue)
	if err != nil {
		return nil, fmt.Errorf("vmservice: parsing root node in layout tree: %w", err)
	}
	layouts := []types.LayoutInfo{ExtractLayoutInfo(root, resultValue)}

	var withChildren struct {
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(resultValue, &withChildren); err == nil {
		for _, childRaw := range withChildren.Children {
			childNode, err := ParseDiagnosticsNodeResponse(childRaw)
			if err != nil {
				continue
			}
			layouts = append(layouts, ExtractLayoutInfo(childNode, childRaw))
		}
	}
	return layouts, nil
}

// FetchLayoutData is the high-level Layout Explorer entry point: one
// extension call with subtreeDepth=1 returns both the widget subtree
// and layout properties for the target widget and its direct children.
func FetchLayoutData(ctx context.Context, client *Client, isolateID, valueID, groupName string) (types.DiagnosticsNode, []types.LayoutInfo, error) {
	raw, err := GetLayoutExplorerNode(ctx, client, isolateID, valueID, groupName, 1)
	if err != nil {
		return types.DiagnosticsNode{}, nil, err
	}
	node, err := ParseDiagnosticsNodeResponse(raw)
	if err != nil {
		return types.DiagnosticsNode{}, nil, err
	}
	layouts, err := ExtractLayoutTree(raw)
	if err != nil {
		return types.DiagnosticsNode{}, nil, err
	}
	return node, layouts, nil
}
