package sbc

import "fmt"

// CompareOp is the operand of co_compare.
type CompareOp uint8

const (
	CmpEqual CompareOp = iota
	CmpNotEqual
	CmpLess
	CmpLessEqual
	CmpGreater
	CmpGreaterEqual
)

var compareOpName = [...]string{
	CmpEqual:        "eq",
	CmpNotEqual:     "ne",
	CmpLess:         "lt",
	CmpLessEqual:    "le",
	CmpGreater:      "gt",
	CmpGreaterEqual: "ge",
}

func (c CompareOp) String() string { return compareOpName[c] }

var compareOpByName = map[string]CompareOp{
	"eq": CmpEqual, "ne": CmpNotEqual, "lt": CmpLess,
	"le": CmpLessEqual, "gt": CmpGreater, "ge": CmpGreaterEqual,
}

// BinOp is the operand of co_binop.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
	BinMatMul
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShiftLeft
	BinShiftRight
)

var binOpName = [...]string{
	BinAdd: "add", BinSub: "sub", BinMul: "mul", BinDiv: "div",
	BinMod: "mod", BinPow: "pow", BinMatMul: "matmul",
	BinBitAnd: "and", BinBitOr: "or", BinBitXor: "xor",
	BinShiftLeft: "shl", BinShiftRight: "shr",
}

func (b BinOp) String() string { return binOpName[b] }

var binOpByName = map[string]BinOp{
	"add": BinAdd, "sub": BinSub, "mul": BinMul, "div": BinDiv,
	"mod": BinMod, "pow": BinPow, "matmul": BinMatMul,
	"and": BinBitAnd, "or": BinBitOr, "xor": BinBitXor,
	"shl": BinShiftLeft, "shr": BinShiftRight,
}

// UnOp is the operand of co_unop.
type UnOp uint8

const (
	UnNeg UnOp = iota
	UnNot
	UnInvert
)

var unOpName = [...]string{UnNeg: "neg", UnNot: "not", UnInvert: "invert"}

func (u UnOp) String() string { return unOpName[u] }

var unOpByName = map[string]UnOp{"neg": UnNeg, "not": UnNot, "invert": UnInvert}

// ConstKind distinguishes which field of a literal constant is live.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	// ConstNone marks a bare "return" with no value: the source
	// runtime's None sentinel, which only makes sense immediately
	// before co_return and only in a fragment shader, where the backend
	// turns it into OpKill instead of a returned value.
	ConstNone
)

// Const is a literal value carried by co_load_constant. The source
// runtime's constant pool holds untyped numeric/boolean literals;
// which Go field is meaningful is given by Kind.
type Const struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
}

func (c Const) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("int %d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("float %g", c.Float)
	case ConstBool:
		return fmt.Sprintf("bool %t", c.Bool)
	case ConstNone:
		return "none"
	default:
		return "const ?"
	}
}

// Resource is the operand of co_resource: the (name, iokind, slot,
// type) tuple spec.md §6's parameter grammar describes. Slot is one of
// Location, Builtin, or the (Set,Binding) pair, per IOKind.
type Resource struct {
	Name     string
	IOKind   string
	Location *int
	Builtin  string
	Set      *int
	Binding  *int
	TypeSpec string
}

func (r Resource) String() string {
	var slot string
	switch {
	case r.Builtin != "":
		slot = "builtin:" + r.Builtin
	case r.Location != nil:
		slot = fmt.Sprintf("loc:%d", *r.Location)
	case r.Set != nil && r.Binding != nil:
		slot = fmt.Sprintf("bind:%d,%d", *r.Set, *r.Binding)
	default:
		slot = "none"
	}
	return fmt.Sprintf("%s %s %s %s", r.Name, r.IOKind, slot, r.TypeSpec)
}

// Call is the operand of co_call/co_call_builtin: the callee's resolved
// dotted name (e.g. "stdlib.sin", "tex.sample") and its argument count.
// The name is resolved by the Front-end Lowerer at lowering time (§4.3
// point 3); the Back-end Generator never re-resolves a callee name.
type Call struct {
	Name string
	Argc int
}

func (c Call) String() string { return fmt.Sprintf("%s %d", c.Name, c.Argc) }

// Operand is the tagged union an Instruction's operand slot holds. At
// most one field is meaningful per instruction; which one is
// determined by Descriptors[Op].Operand.
type Operand struct {
	Str      string
	Int      int64
	Float    float64
	Label    int
	Label2   int
	Compare  CompareOp
	Bin      BinOp
	Un       UnOp
	Const    Const
	Resource Resource
	Call     Call
}

// Instruction is a single decoded Shader ByteCode instruction, tagged
// with the source line it was generated from so diagnostics can always
// point back at the originating statement.
type Instruction struct {
	Op      Opcode
	Operand Operand
	Line    int
}

// Program is a flat instruction sequence: the output of the Front-end
// Lowerer and the input to the Back-end Generator.
type Program struct {
	Instructions []Instruction

	// Source is the original function source text the Instructions were
	// lowered from, used only for error attribution. It has no textual
	// grammar of its own and does not round-trip through Print/Parse —
	// a Program read back from printed bytecode always has it empty.
	Source string
}

// Print renders a Program as one mnemonic (and operand, if any) per
// line, matching the textual form the original implementation's test
// suite compares bytecode against. Parse is its exact inverse.
func Print(p Program) string {
	var out []byte
	for _, instr := range p.Instructions {
		out = append(out, renderInstruction(instr)...)
		out = append(out, '\n')
	}
	return string(out)
}

func renderInstruction(instr Instruction) string {
	desc, ok := Descriptors[instr.Op]
	if !ok {
		return instr.Op.String()
	}
	switch desc.Operand {
	case OperandNone:
		return instr.Op.String()
	case OperandString, OperandName:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Str)
	case OperandInt:
		return fmt.Sprintf("%s %d", instr.Op, instr.Operand.Int)
	case OperandFloat:
		return fmt.Sprintf("%s %g", instr.Op, instr.Operand.Float)
	case OperandLabel:
		return fmt.Sprintf("%s L%d", instr.Op, instr.Operand.Label)
	case OperandCompareOp:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Compare)
	case OperandBinOp:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Bin)
	case OperandUnOp:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Un)
	case OperandRotateDepth:
		return fmt.Sprintf("%s %d", instr.Op, instr.Operand.Int)
	case OperandConst:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Const)
	case OperandResource:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Resource)
	case OperandCall:
		return fmt.Sprintf("%s %s", instr.Op, instr.Operand.Call)
	case OperandLabelPair:
		return fmt.Sprintf("%s L%d,L%d", instr.Op, instr.Operand.Label, instr.Operand.Label2)
	default:
		return instr.Op.String()
	}
}
