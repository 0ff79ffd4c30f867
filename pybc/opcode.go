// Package pybc models the dynamic-language stack-VM bytecode the
// Front-end Lowerer consumes: CPython-style instructions with a
// wide-operand EXTENDED_ARG encoding and stack-shuffling opcodes
// (ROT_TWO/THREE/FOUR, DUP_TOP, BUILD_TUPLE, UNPACK_SEQUENCE) that the
// lowerer must fold or recognize before it can emit Shader ByteCode.
package pybc

import (
	"encoding/json"
	"fmt"
)

// Opcode is a single host bytecode operation. Only the subset the
// Front-end Lowerer needs to recognize is named; anything else decodes
// to OpUnknown and is an UnsupportedFeature error at lowering time, not
// at decode time — decode must not fail on opcodes it merely doesn't
// understand yet, since unrelated host bytecode (closures, exception
// handling) can appear in a function without ever being reached.
type Opcode uint8

const (
	OpUnknown Opcode = iota

	OpPopTop
	OpRotTwo
	OpRotThree
	OpRotFour
	OpDupTop

	OpUnaryNegative
	OpUnaryNot
	OpUnaryInvert

	OpBinaryPower
	OpBinaryMultiply
	OpBinaryModulo
	OpBinaryAdd
	OpBinarySubtract
	OpBinarySubscr
	OpBinaryFloorDivide
	OpBinaryTrueDivide
	OpBinaryLshift
	OpBinaryRshift
	OpBinaryAnd
	OpBinaryXor
	OpBinaryOr
	OpBinaryMatrixMultiply

	OpStoreSubscr
	OpStoreAttr

	OpReturnValue

	OpStoreFast
	OpLoadFast
	OpLoadConst
	OpLoadGlobal
	OpLoadAttr
	OpLoadMethod

	OpCompareOp

	OpJumpForward
	OpJumpAbsolute
	OpPopJumpIfFalse
	OpPopJumpIfTrue
	OpJumpIfFalseOrPop
	OpJumpIfTrueOrPop

	OpBuildTuple
	OpUnpackSequence

	OpCallFunction
	OpCallMethod

	OpGetIter
	OpForIter

	OpExtendedArg
)

var mnemonic = map[Opcode]string{
	OpPopTop:               "POP_TOP",
	OpRotTwo:                "ROT_TWO",
	OpRotThree:              "ROT_THREE",
	OpRotFour:               "ROT_FOUR",
	OpDupTop:                "DUP_TOP",
	OpUnaryNegative:         "UNARY_NEGATIVE",
	OpUnaryNot:              "UNARY_NOT",
	OpUnaryInvert:           "UNARY_INVERT",
	OpBinaryPower:           "BINARY_POWER",
	OpBinaryMultiply:        "BINARY_MULTIPLY",
	OpBinaryModulo:          "BINARY_MODULO",
	OpBinaryAdd:             "BINARY_ADD",
	OpBinarySubtract:        "BINARY_SUBTRACT",
	OpBinarySubscr:          "BINARY_SUBSCR",
	OpBinaryFloorDivide:     "BINARY_FLOOR_DIVIDE",
	OpBinaryTrueDivide:      "BINARY_TRUE_DIVIDE",
	OpBinaryLshift:          "BINARY_LSHIFT",
	OpBinaryRshift:          "BINARY_RSHIFT",
	OpBinaryAnd:             "BINARY_AND",
	OpBinaryXor:             "BINARY_XOR",
	OpBinaryOr:              "BINARY_OR",
	OpBinaryMatrixMultiply:  "BINARY_MATRIX_MULTIPLY",
	OpStoreSubscr:           "STORE_SUBSCR",
	OpStoreAttr:             "STORE_ATTR",
	OpReturnValue:           "RETURN_VALUE",
	OpStoreFast:             "STORE_FAST",
	OpLoadFast:              "LOAD_FAST",
	OpLoadConst:             "LOAD_CONST",
	OpLoadGlobal:            "LOAD_GLOBAL",
	OpLoadAttr:              "LOAD_ATTR",
	OpLoadMethod:            "LOAD_METHOD",
	OpCompareOp:             "COMPARE_OP",
	OpJumpForward:           "JUMP_FORWARD",
	OpJumpAbsolute:          "JUMP_ABSOLUTE",
	OpPopJumpIfFalse:        "POP_JUMP_IF_FALSE",
	OpPopJumpIfTrue:         "POP_JUMP_IF_TRUE",
	OpJumpIfFalseOrPop:      "JUMP_IF_FALSE_OR_POP",
	OpJumpIfTrueOrPop:       "JUMP_IF_TRUE_OR_POP",
	OpBuildTuple:            "BUILD_TUPLE",
	OpUnpackSequence:        "UNPACK_SEQUENCE",
	OpCallFunction:          "CALL_FUNCTION",
	OpCallMethod:            "CALL_METHOD",
	OpGetIter:               "GET_ITER",
	OpForIter:               "FOR_ITER",
	OpExtendedArg:           "EXTENDED_ARG",
}

func (op Opcode) String() string {
	if s, ok := mnemonic[op]; ok {
		return s
	}
	return "UNKNOWN"
}

var opcodeByMnemonic = func() map[string]Opcode {
	m := make(map[string]Opcode, len(mnemonic))
	for op, s := range mnemonic {
		m[s] = op
	}
	return m
}()

// MarshalJSON renders an Opcode as its mnemonic ("LOAD_FAST", "FOR_ITER",
// ...) rather than its numeric value, so a bytecode trace fixture checked
// in under regression/testdata/in reads like a disassembly instead of a
// column of magic numbers.
func (op Opcode) MarshalJSON() ([]byte, error) {
	s, ok := mnemonic[op]
	if !ok {
		return nil, fmt.Errorf("pybc: opcode %d has no mnemonic to marshal", uint8(op))
	}
	return json.Marshal(s)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (op *Opcode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, ok := opcodeByMnemonic[s]
	if !ok {
		return fmt.Errorf("pybc: unknown opcode mnemonic %q", s)
	}
	*op = decoded
	return nil
}

// HasArg reports whether op carries a meaningful Arg value. Opcodes
// without an argument (POP_TOP, the unary/binary arithmetic family,
// RETURN_VALUE, the ROT_* and DUP_TOP shufflers) always decode with
// Arg == 0.
func (op Opcode) HasArg() bool {
	switch op {
	case OpStoreFast, OpLoadFast, OpLoadConst, OpLoadGlobal, OpLoadAttr,
		OpLoadMethod, OpCompareOp, OpJumpForward, OpJumpAbsolute,
		OpPopJumpIfFalse, OpPopJumpIfTrue, OpJumpIfFalseOrPop,
		OpJumpIfTrueOrPop, OpBuildTuple, OpUnpackSequence,
		OpCallFunction, OpCallMethod, OpForIter, OpExtendedArg, OpStoreAttr:
		return true
	default:
		return false
	}
}

// IsRotate reports whether op is one of the stack-rotation family.
func (op Opcode) IsRotate() bool {
	switch op {
	case OpRotTwo, OpRotThree, OpRotFour:
		return true
	default:
		return false
	}
}

// RotateDepth returns how many stack slots op rotates.
func (op Opcode) RotateDepth() int {
	switch op {
	case OpRotTwo:
		return 2
	case OpRotThree:
		return 3
	case OpRotFour:
		return 4
	default:
		return 0
	}
}

// IsJump reports whether op transfers control.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJumpForward, OpJumpAbsolute, OpPopJumpIfFalse, OpPopJumpIfTrue,
		OpJumpIfFalseOrPop, OpJumpIfTrueOrPop:
		return true
	default:
		return false
	}
}

// IsConditionalJump reports whether op pops a condition before branching.
func (op Opcode) IsConditionalJump() bool {
	switch op {
	case OpPopJumpIfFalse, OpPopJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop:
		return true
	default:
		return false
	}
}
