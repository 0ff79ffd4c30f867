package sbc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func trivialProgram() Program {
	return Program{Instructions: []Instruction{
		{Op: OpSrcFilename, Operand: Operand{Str: "triangle.shd"}},
		{Op: OpSrcLineNr, Operand: Operand{Int: 3}, Line: 3},
		{Op: OpEntrypoint, Operand: Operand{Str: "main"}, Line: 3},
		{Op: OpSrcLineNr, Operand: Operand{Int: 4}, Line: 4},
		{Op: OpLoadConstant, Line: 4},
		{Op: OpStoreName, Operand: Operand{Str: "color"}, Line: 4},
		{Op: OpFuncEnd, Line: 4},
	}}
}

func TestPrintParseRoundTrip(t *testing.T) {
	p := trivialProgram()
	text := Print(p)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintFormat(t *testing.T) {
	p := Program{Instructions: []Instruction{
		{Op: OpBinop, Operand: Operand{Bin: BinAdd}},
		{Op: OpCompare, Operand: Operand{Compare: CmpLess}},
		{Op: OpBranchConditional, Operand: Operand{Label: 7}},
		{Op: OpPopTop},
	}}
	want := "co_binop add\nco_compare lt\nco_branch_conditional L7\nco_pop_top\n"
	if got := Print(p); got != want {
		t.Fatalf("Print() = %q, want %q", got, want)
	}
}

func TestParseUnknownOpcode(t *testing.T) {
	if _, err := Parse("co_frobnicate\n"); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestParseRejectsExtraOperand(t *testing.T) {
	if _, err := Parse("co_pop_top 1\n"); err == nil {
		t.Fatal("expected error for unexpected operand")
	}
}

func TestOpcodeStringRoundTrip(t *testing.T) {
	for op := OpSrcFilename; op <= OpReturn; op++ {
		s := op.String()
		got, ok := ParseOpcode(s)
		if !ok {
			t.Errorf("ParseOpcode(%q) not found", s)
			continue
		}
		if got != op {
			t.Errorf("ParseOpcode(%q) = %v, want %v", s, got, op)
		}
	}
}
