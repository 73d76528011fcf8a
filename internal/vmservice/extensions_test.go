package vmservice

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoolExtensionResponseTrueAndFalse(t *testing.T) {
	v, err := ParseBoolExtensionResponse(json.RawMessage(`{"enabled":"true","type":"_extensionType"}`))
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseBoolExtensionResponse(json.RawMessage(`{"enabled":"false"}`))
	require.NoError(t, err)
	assert.False(t, v)
}

func TestParseBoolExtensionResponseRejectsJSONBool(t *testing.T) {
	// VM Service protocol requires a string, not a JSON boolean.
	_, err := ParseBoolExtensionResponse(json.RawMessage(`{"enabled":true}`))
	assert.Error(t, err)
}

func TestParseBoolExtensionResponseMissingField(t *testing.T) {
	_, err := ParseBoolExtensionResponse(json.RawMessage(`{"other":"value"}`))
	assert.Error(t, err)
}

func TestParseBoolExtensionResponseArbitraryStringIsFalse(t *testing.T) {
	v, err := ParseBoolExtensionResponse(json.RawMessage(`{"enabled":"yes"}`))
	require.NoError(t, err)
	assert.False(t, v)
}

func TestParseDataExtensionResponse(t *testing.T) {
	v, err := ParseDataExtensionResponse(json.RawMessage(`{"data":"MyApp\n  Scaffold\n"}`))
	require.NoError(t, err)
	assert.Contains(t, v, "MyApp")
}

func TestParseDataExtensionResponseMissingField(t *testing.T) {
	_, err := ParseDataExtensionResponse(json.RawMessage(`{"other":"value"}`))
	assert.Error(t, err)
}

func TestIsExtensionNotAvailableCodes(t *testing.T) {
	assert.True(t, IsExtensionNotAvailable(&RPCError{Code: -32601, Message: "Method not found"}))
	assert.True(t, IsExtensionNotAvailable(&RPCError{Code: 113, Message: "Extension not available"}))
	assert.True(t, IsExtensionNotAvailable(&RPCError{Code: -32000, Message: "Method not found: ext.flutter.repaintRainbow"}))
	assert.False(t, IsExtensionNotAvailable(&RPCError{Code: -32700, Message: "Parse error"}))
	assert.False(t, IsExtensionNotAvailable(nil))
}

func TestDebugDumpKindMethodsAndProfileAvailability(t *testing.T) {
	assert.Equal(t, ExtDebugDumpApp, DumpWidgetTree.Method())
	assert.Equal(t, ExtDebugDumpRenderTree, DumpRenderTree.Method())
	assert.Equal(t, ExtDebugDumpLayerTree, DumpLayerTree.Method())
	assert.True(t, DumpWidgetTree.AvailableInProfile())
	assert.True(t, DumpRenderTree.AvailableInProfile())
	assert.False(t, DumpLayerTree.AvailableInProfile())
}

func TestParseDiagnosticsNodeResponseUnwrapsResultKey(t *testing.T) {
	raw := json.RawMessage(`{"result":{"description":"MyApp","hasChildren":true,"valueId":"objects/1","children":[]}}`)
	node, err := ParseDiagnosticsNodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "MyApp", node.Description)
	assert.Equal(t, "objects/1", node.ValueID)
}

func TestParseDiagnosticsNodeResponseDirectValue(t *testing.T) {
	raw := json.RawMessage(`{"description":"MyApp","hasChildren":false,"valueId":"objects/2"}`)
	node, err := ParseDiagnosticsNodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "MyApp", node.Description)
}

func TestParseOptionalDiagnosticsNodeResponseNull(t *testing.T) {
	node, err := ParseOptionalDiagnosticsNodeResponse(json.RawMessage(`{"result":null}`))
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestParseOptionalDiagnosticsNodeResponseSome(t *testing.T) {
	node, err := ParseOptionalDiagnosticsNodeResponse(json.RawMessage(`{"result":{"description":"Container","hasChildren":false}}`))
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "Container", node.Description)
}

func TestParseBoxConstraintsFiniteBounds(t *testing.T) {
	bc, ok := ParseBoxConstraints("BoxConstraints(0.0<=w<=400.0, 0.0<=h<=600.0)")
	require.True(t, ok)
	assert.Equal(t, 0.0, bc.MinWidth)
	assert.Equal(t, 400.0, bc.MaxWidth)
	assert.Equal(t, 600.0, bc.MaxHeight)
}

func TestParseBoxConstraintsUnboundedAxis(t *testing.T) {
	bc, ok := ParseBoxConstraints("BoxConstraints(0.0<=w<=Infinity, 0.0<=h<=600.0)")
	require.True(t, ok)
	assert.Equal(t, -1.0, bc.MaxWidth)
}

func TestParseBoxConstraintsMalformedReturnsFalse(t *testing.T) {
	_, ok := ParseBoxConstraints("not a constraints description")
	assert.False(t, ok)
}

func TestExtractLayoutInfoReadsFlexFactorAndSize(t *testing.T) {
	node, err := ParseDiagnosticsNodeResponse(json.RawMessage(`{"description":"Flexible"}`))
	require.NoError(t, err)

	raw := json.RawMessage(`{
		"description":"Flexible",
		"constraints":{"description":"BoxConstraints(0.0<=w<=100.0, 0.0<=h<=200.0)"},
		"size":{"width":100.0,"height":200.0},
		"flexFactor":2,
		"flexFit":"tight"
	}`)
	info := ExtractLayoutInfo(node, raw)
	require.NotNil(t, info.Constraints)
	assert.Equal(t, 100.0, info.Constraints.MaxWidth)
	require.NotNil(t, info.Size)
	assert.Equal(t, 200.0, info.Size.Height)
	assert.True(t, info.FlexFactor.Valid)
	assert.Equal(t, 2.0, info.FlexFactor.Value)
	require.NotNil(t, info.FlexFit)
	assert.Equal(t, "tight", *info.FlexFit)
}

func TestExtractLayoutInfoNullFlexFactorIsNotZero(t *testing.T) {
	node, err := ParseDiagnosticsNodeResponse(json.RawMessage(`{"description":"Rigid"}`))
	require.NoError(t, err)
	raw := json.RawMessage(`{"description":"Rigid","flexFactor":null}`)
	info := ExtractLayoutInfo(node, raw)
	assert.False(t, info.FlexFactor.Valid)
}

func TestExtractLayoutTreeCollectsRootAndChildren(t *testing.T) {
	raw := json.RawMessage(`{
		"result": {
			"description":"Row",
			"hasChildren":true,
			"children":[
				{"description":"Child1","hasChildren":false,"flexFactor":1},
				{"description":"Child2","hasChildren":false,"flexFactor":"2"}
			]
		}
	}`)
	layouts, err := ExtractLayoutTree(raw)
	require.NoError(t, err)
	require.Len(t, layouts, 3)
	assert.Equal(t, "Row", *layouts[0].Description)
	assert.Equal(t, "Child1", *layouts[1].Description)
	assert.Equal(t, "Child2", *layouts[2].Description)
	assert.Equal(t, 2.0, layouts[2].FlexFactor.Value)
}
