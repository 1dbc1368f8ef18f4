package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseFailureKind enumerates the ways a model reply can fail to parse
// into a tool call (spec §4.2).
type ParseFailureKind string

const (
	ParseFailureUnknownTool     ParseFailureKind = "unknown_tool"
	ParseFailureUnknownArgument ParseFailureKind = "unknown_argument"
	ParseFailureMultipleCalls   ParseFailureKind = "multiple_calls"
	ParseFailureMissingArgument ParseFailureKind = "missing_argument"
	ParseFailureSchemaViolation ParseFailureKind = "schema_violation"
)

// ParsedToolCall is the successful output of the parser: a tool identifier
// and its validated arguments, keyed by declared argument name.
type ParsedToolCall struct {
	ToolName  Name
	Arguments map[string]any
	// Raw is the exact tool-call block text, kept for audit/replay.
	Raw string
}

// ParseFailure is the unsuccessful output of the parser. It does not
// terminate the Agent Loop (spec §4.2): the loop appends a synthetic
// ToolResult describing the failure and proceeds, subject to the
// parse-failure retry budget.
type ParseFailure struct {
	Kind   ParseFailureKind
	Detail string
	Raw    string
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// rootTagPattern matches an opening tag, capturing its name. Matching is
// intentionally permissive about attributes (none are part of the
// grammar) and self-closing form, since a terminating tool's first reply
// may arrive as a bare "<toolname/>" probe.
var rootTagPattern = regexp.MustCompile(`<([a-zA-Z_][a-zA-Z0-9_]*)\s*/?\s*>`)

// Parse implements the Tool-Invocation Parser (C2) against the given
// registry. A reply with no tool-call block at all returns (nil, nil, nil):
// callers must treat that as a terminal assistant message (spec §8,
// "Boundary behaviors: Empty transcripts must parse as no-op").
func Parse(reg *Registry, reply string) (*ParsedToolCall, *ParseFailure, error) {
	blocks := findTopLevelBlocks(reply)
	if len(blocks) == 0 {
		return nil, nil, nil
	}
	if len(blocks) > 1 {
		return nil, &ParseFailure{Kind: ParseFailureMultipleCalls, Detail: fmt.Sprintf("found %d root blocks", len(blocks)), Raw: reply}, nil
	}
	block := blocks[0]

	desc, err := reg.Lookup(Name(block.tag))
	if err != nil {
		return nil, &ParseFailure{Kind: ParseFailureUnknownTool, Detail: block.tag, Raw: block.raw}, nil
	}

	args, failure := parseArguments(*desc, block)
	if failure != nil {
		failure.Raw = block.raw
		return nil, failure, nil
	}

	if desc.ArgumentSchema != nil {
		if err := desc.ArgumentSchema.Validate(toSchemaValue(args)); err != nil {
			return nil, &ParseFailure{Kind: ParseFailureSchemaViolation, Detail: err.Error(), Raw: block.raw}, nil
		}
	}

	return &ParsedToolCall{ToolName: desc.Name, Arguments: args, Raw: block.raw}, nil, nil
}

type block struct {
	tag string
	raw string
	// inner is the content between open and close tags; empty for
	// self-closing blocks.
	inner string
}

// findTopLevelBlocks scans for every root-level "<tag>...</tag>" or
// self-closing "<tag/>" occurrence, ignoring `<`-prefixed tokens inside an
// already-matched block's inner content (spec §4.2 tie-break: stray `<`
// tokens outside the root block are ignored, they are never treated as
// additional root candidates once consumed as inner content).
func findTopLevelBlocks(s string) []block {
	var blocks []block
	i := 0
	for i < len(s) {
		loc := rootTagPattern.FindStringSubmatchIndex(s[i:])
		if loc == nil {
			break
		}
		start := i + loc[0]
		end := i + loc[1]
		tag := s[i+loc[2] : i+loc[3]]
		openTag := s[start:end]

		if strings.HasSuffix(strings.TrimSpace(openTag), "/>") {
			blocks = append(blocks, block{tag: tag, raw: openTag})
			i = end
			continue
		}

		closeTag := "</" + tag + ">"
		closeIdx := strings.Index(s[end:], closeTag)
		if closeIdx < 0 {
			// No matching close tag; treat the opening tag as noise and
			// keep scanning past it rather than failing the whole parse.
			i = end
			continue
		}
		innerEnd := end + closeIdx
		blocks = append(blocks, block{tag: tag, raw: s[start : innerEnd+len(closeTag)], inner: s[end:innerEnd]})
		i = innerEnd + len(closeTag)
	}
	return blocks
}

// childTagPattern matches an immediate child element and its inner text.
// Non-greedy matching keeps structured JSON payloads (which may themselves
// contain '<' or '>' characters, e.g. comparison operators in code) from
// being mistaken for nested tags, as long as the payload does not itself
// contain a literal "</name>" close sequence for a sibling argument name.
func childTagPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(name) + `>(.*?)</` + regexp.QuoteMeta(name) + `>`)
}

func parseArguments(desc Descriptor, b block) (map[string]any, *ParseFailure) {
	declared := desc.DeclaredArgumentSet()
	args := make(map[string]any, len(declared))

	seen := map[string]bool{}
	for name, argDesc := range declared {
		m := childTagPattern(name).FindStringSubmatch(b.inner)
		if m == nil {
			continue
		}
		seen[name] = true
		raw := m[1]
		if argDesc.Structured {
			var decoded any
			if desc.Codec.FromJSON != nil {
				v, err := desc.Codec.FromJSON(json.RawMessage(raw))
				if err != nil {
					return nil, &ParseFailure{Kind: ParseFailureSchemaViolation, Detail: fmt.Sprintf("argument %q: %s", name, err)}
				}
				decoded = v
			} else {
				if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
					return nil, &ParseFailure{Kind: ParseFailureSchemaViolation, Detail: fmt.Sprintf("argument %q: %s", name, err)}
				}
			}
			args[name] = decoded
		} else {
			args[name] = strings.TrimSpace(raw)
		}
	}

	for name := range declared {
		if argDesc := declared[name]; argDesc.Required && !seen[name] {
			return nil, &ParseFailure{Kind: ParseFailureMissingArgument, Detail: name}
		}
	}

	if unknown := findUnknownChildren(b.inner, declared); unknown != "" {
		return nil, &ParseFailure{Kind: ParseFailureUnknownArgument, Detail: unknown}
	}

	return args, nil
}

func findUnknownChildren(inner string, declared map[string]Argument) string {
	for _, m := range rootTagPattern.FindAllStringSubmatch(inner, -1) {
		tag := m[1]
		if _, ok := declared[tag]; !ok {
			return tag
		}
	}
	return ""
}

func toSchemaValue(args map[string]any) any {
	// jsonschema validates against decoded JSON values; round-trip through
	// JSON once so numeric/bool argument values match the types produced
	// by a real JSON decode rather than Go's native map value types.
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
