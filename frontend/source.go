// Package frontend implements the Front-end Lowerer: it simulates a
// source-runtime stack-VM bytecode trace and emits the flat Shader
// ByteCode opcode sequence the backend package consumes.
package frontend

import (
	"strings"

	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/pybc"
)

// IOKind is the resource category a Parameter belongs to.
type IOKind uint8

const (
	IOInput IOKind = iota
	IOOutput
	IOBuffer
	IOUniform
	IOTexture
	IOSampler
)

func (k IOKind) String() string {
	switch k {
	case IOInput:
		return "input"
	case IOOutput:
		return "output"
	case IOBuffer:
		return "buffer"
	case IOUniform:
		return "uniform"
	case IOTexture:
		return "texture"
	case IOSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// Slot identifies where a Parameter binds: either a location/binding
// integer, a builtin name, or a (set, binding) pair for texture and
// sampler resources.
type Slot struct {
	Location *int
	Builtin  string
	Set      *int
	Binding  *int
}

// Parameter is one entry of a SourceFunction's signature: the
// (iokind, slot, type) triple spec.md §6 names.
type Parameter struct {
	Name     string
	IOKind   IOKind
	Slot     Slot
	TypeSpec string
}

// SourceFunction is the Front-end Lowerer's exact input: a signature
// plus a source-runtime bytecode trace. It replaces the decorator
// entry point a dynamic host language would normally intercept at
// function-definition time — Go cannot introspect a compiled
// function's bytecode at runtime, so the bytecode and signature are
// supplied as explicit data instead.
type SourceFunction struct {
	Name     string
	Filename string
	Stage    ir.ShaderStage
	Parameters []Parameter
	Code     pybc.Function
	// Source is the original function source text, one statement per
	// line, used only for error attribution (errorchannel.Error.SourceLine).
	// It is not consumed by the lowering algorithm itself: Lower works
	// entirely off Code. Callers that cannot retain source text (e.g. a
	// bytecode trace captured without it) may leave this empty, in which
	// case diagnostics fall back to describing the offending construct
	// instead of quoting it.
	Source string
}

// sourceLine returns the 1-indexed line of source text, trimmed, or ""
// when source is unavailable or line is out of range.
func sourceLine(source string, line int) string {
	if source == "" || line <= 0 {
		return ""
	}
	lines := splitLines(source)
	if line > len(lines) {
		return ""
	}
	return lines[line-1]
}

// splitLines splits source text on newlines and trims surrounding
// whitespace from each line, so a SourceLine quoted in an error never
// carries leading indentation.
func splitLines(source string) []string {
	raw := strings.Split(source, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}
