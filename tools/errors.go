package tools

import (
	"encoding/json"
	"errors"
)

// Sentinel errors for Registry operations (spec §4.1).
var (
	ErrDuplicateTool = errors.New("tools: duplicate tool")
	ErrUnknownTool   = errors.New("tools: unknown tool")
)

// toUnmarshaled decodes raw JSON Schema bytes into the generic any value
// jsonschema.Compiler.AddResource expects. A malformed schema here is a
// registration-time bug, so an unmarshal failure is folded into nil and
// surfaced by the subsequent Compile call instead of panicking.
func toUnmarshaled(raw []byte) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
