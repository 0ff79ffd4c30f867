// Package sbc defines Shader ByteCode: the flat, language-independent
// opcode sequence that sits between the Front-end Lowerer and the
// Back-end Generator. It owns the closed opcode set, the descriptor
// table describing each opcode's operand/stack shape, and the textual
// Print/Parse codec used for golden tests and debugging.
package sbc

import "fmt"

// Opcode is a single Shader ByteCode instruction mnemonic. The set is
// closed: the Front-end Lowerer never emits anything outside it, and
// the Back-end Generator never needs to handle anything outside it.
type Opcode uint8

const (
	OpSrcFilename Opcode = iota
	OpSrcLineNr
	OpEntrypoint
	OpFuncEnd
	OpResource
	OpLoadConstant
	OpLoadName
	OpStoreName
	OpLoadIndex
	OpStoreIndex
	OpLoadAttr
	OpStoreAttr
	OpLoadGlobal
	OpCall
	OpCallBuiltin
	OpBinop
	OpUnop
	OpCompare
	OpPopTop
	OpRotate
	OpDupTop
	OpLabel
	OpBranch
	OpBranchConditional
	OpSelectMerge
	OpLoopMerge
	OpContinue
	OpBreak
	OpReturn
)

// name is the co_-prefixed mnemonic used by Print/Parse and in error
// messages; it is also the identity spec.md and original_source/ use.
var name = [...]string{
	OpSrcFilename:       "co_src_filename",
	OpSrcLineNr:         "co_src_linenr",
	OpEntrypoint:        "co_entrypoint",
	OpFuncEnd:           "co_func_end",
	OpResource:          "co_resource",
	OpLoadConstant:      "co_load_constant",
	OpLoadName:          "co_load_name",
	OpStoreName:         "co_store_name",
	OpLoadIndex:         "co_load_index",
	OpStoreIndex:        "co_store_index",
	OpLoadAttr:          "co_load_attr",
	OpStoreAttr:         "co_store_attr",
	OpLoadGlobal:        "co_load_global",
	OpCall:              "co_call",
	OpCallBuiltin:       "co_call_builtin",
	OpBinop:             "co_binop",
	OpUnop:              "co_unop",
	OpCompare:           "co_compare",
	OpPopTop:            "co_pop_top",
	OpRotate:            "co_rotate",
	OpDupTop:            "co_dup_top",
	OpLabel:             "co_label",
	OpBranch:            "co_branch",
	OpBranchConditional: "co_branch_conditional",
	OpSelectMerge:       "co_select_merge",
	OpLoopMerge:         "co_loop_merge",
	OpContinue:          "co_continue",
	OpBreak:             "co_break",
	OpReturn:            "co_return",
}

var byName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(name))
	for op, n := range name {
		m[n] = Opcode(op)
	}
	return m
}()

// String returns the co_-prefixed mnemonic.
func (op Opcode) String() string {
	if int(op) < len(name) && name[op] != "" {
		return name[op]
	}
	return fmt.Sprintf("co_unknown(%d)", uint8(op))
}

// ParseOpcode looks up an Opcode by its mnemonic.
func ParseOpcode(s string) (Opcode, bool) {
	op, ok := byName[s]
	return op, ok
}

// StackEffect describes how an instruction touches the symbolic value
// stack: how many values it pops, and whether it pushes one in return.
// Control-flow and directive opcodes (labels, branches, merges, source
// markers) have zero effect — they touch control state, not the stack —
// except co_branch_conditional, which pops its condition.
type StackEffect struct {
	Pops    int
	Pushes  bool
}

// Descriptor documents one opcode's shape: its operand kind and its
// effect on the symbolic execution stack, mirroring the way
// spirv.OpCode pairs a closed enum with per-opcode rules.
type Descriptor struct {
	Operand OperandKind
	Effect  StackEffect
}

// OperandKind classifies what an instruction's Operand field holds.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandString
	OperandInt
	OperandFloat
	OperandName
	OperandCompareOp
	OperandBinOp
	OperandUnOp
	OperandLabel
	OperandRotateDepth
	OperandConst
	OperandResource
	OperandCall
	OperandLabelPair
)

// Descriptors is the opcode -> shape table the opcode registry
// exposes; Print and Parse use each opcode's Operand kind from it.
var Descriptors = map[Opcode]Descriptor{
	OpSrcFilename:       {Operand: OperandString, Effect: StackEffect{}},
	OpSrcLineNr:         {Operand: OperandInt, Effect: StackEffect{}},
	OpEntrypoint:        {Operand: OperandString, Effect: StackEffect{}},
	OpFuncEnd:           {Operand: OperandNone, Effect: StackEffect{}},
	OpResource:          {Operand: OperandResource, Effect: StackEffect{}},
	OpLoadConstant:      {Operand: OperandConst, Effect: StackEffect{Pushes: true}},
	OpLoadName:          {Operand: OperandName, Effect: StackEffect{Pushes: true}},
	OpStoreName:         {Operand: OperandName, Effect: StackEffect{Pops: 1}},
	OpLoadIndex:         {Operand: OperandNone, Effect: StackEffect{Pops: 2, Pushes: true}},
	OpStoreIndex:        {Operand: OperandNone, Effect: StackEffect{Pops: 3}},
	OpLoadAttr:          {Operand: OperandName, Effect: StackEffect{Pops: 1, Pushes: true}},
	OpStoreAttr:         {Operand: OperandName, Effect: StackEffect{Pops: 2}},
	OpLoadGlobal:        {Operand: OperandName, Effect: StackEffect{Pushes: true}},
	OpCall:              {Operand: OperandCall, Effect: StackEffect{Pushes: true}}, // Pops is Argc, resolved dynamically
	OpCallBuiltin:       {Operand: OperandCall, Effect: StackEffect{Pushes: true}}, // same
	OpBinop:             {Operand: OperandBinOp, Effect: StackEffect{Pops: 2, Pushes: true}},
	OpUnop:              {Operand: OperandUnOp, Effect: StackEffect{Pops: 1, Pushes: true}},
	OpCompare:           {Operand: OperandCompareOp, Effect: StackEffect{Pops: 2, Pushes: true}},
	OpPopTop:            {Operand: OperandNone, Effect: StackEffect{Pops: 1}},
	OpRotate:            {Operand: OperandRotateDepth, Effect: StackEffect{}},
	OpDupTop:            {Operand: OperandNone, Effect: StackEffect{Pushes: true}},
	OpLabel:             {Operand: OperandLabel, Effect: StackEffect{}},
	OpBranch:            {Operand: OperandLabel, Effect: StackEffect{}},
	OpBranchConditional: {Operand: OperandLabel, Effect: StackEffect{Pops: 1}},
	OpSelectMerge:       {Operand: OperandLabel, Effect: StackEffect{}},
	OpLoopMerge:         {Operand: OperandLabelPair, Effect: StackEffect{}},
	OpContinue:          {Operand: OperandNone, Effect: StackEffect{}},
	OpBreak:             {Operand: OperandNone, Effect: StackEffect{}},
	OpReturn:            {Operand: OperandNone, Effect: StackEffect{Pops: 1}},
}
