package backend

import (
	"testing"

	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/sbc"
)

func constReturnProgram(typeSpec string) sbc.Program {
	loc := 0
	return sbc.Program{Instructions: []sbc.Instruction{
		{Op: sbc.OpSrcFilename, Operand: sbc.Operand{Str: "triangle.shd"}},
		{Op: sbc.OpEntrypoint, Operand: sbc.Operand{Str: "main"}},
		{Op: sbc.OpResource, Operand: sbc.Operand{Resource: sbc.Resource{
			Name: "color", IOKind: "output", TypeSpec: typeSpec, Location: &loc,
		}}},
		{Op: sbc.OpSrcLineNr, Operand: sbc.Operand{Int: 1}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstFloat, Float: 1.0}}, Line: 1},
		{Op: sbc.OpReturn, Line: 1},
		{Op: sbc.OpFuncEnd},
	}}
}

func TestGenerateConstReturn(t *testing.T) {
	mod, err := Generate(constReturnProgram("f32"), ir.StageFragment)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("len(Functions) = %d, want 1", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if fn.Name != "main" {
		t.Errorf("Name = %q, want main", fn.Name)
	}
	if fn.Result == nil {
		t.Fatal("Result is nil, want the single Output resource's type")
	}
	if len(fn.Body) == 0 {
		t.Fatal("Body is empty, want at least the co_return statement")
	}
	last := fn.Body[len(fn.Body)-1]
	ret, ok := last.Kind.(ir.StmtReturn)
	if !ok {
		t.Fatalf("last statement = %T, want ir.StmtReturn", last.Kind)
	}
	if ret.Value == nil {
		t.Fatal("StmtReturn.Value is nil, want the loaded constant")
	}
	if len(mod.EntryPoints) != 1 || mod.EntryPoints[0].Stage != ir.StageFragment {
		t.Fatalf("EntryPoints = %+v, want one fragment entry point", mod.EntryPoints)
	}
}

func TestGenerateMultipleOutputsRejected(t *testing.T) {
	loc0, loc1 := 0, 1
	prog := sbc.Program{Instructions: []sbc.Instruction{
		{Op: sbc.OpSrcFilename, Operand: sbc.Operand{Str: "triangle.shd"}},
		{Op: sbc.OpEntrypoint, Operand: sbc.Operand{Str: "main"}},
		{Op: sbc.OpResource, Operand: sbc.Operand{Resource: sbc.Resource{
			Name: "a", IOKind: "output", TypeSpec: "f32", Location: &loc0,
		}}},
		{Op: sbc.OpResource, Operand: sbc.Operand{Resource: sbc.Resource{
			Name: "b", IOKind: "output", TypeSpec: "f32", Location: &loc1,
		}}},
		{Op: sbc.OpFuncEnd},
	}}
	if _, err := Generate(prog, ir.StageFragment); err == nil {
		t.Fatal("expected an error for a second Output resource")
	}
}

// ifElseProgram builds "if 1 < 2: x = 10 else: x = 20; return x" at the
// Shader ByteCode level, the same co_select_merge/co_branch_conditional/
// co_label frame shape frontend.lowerConditional emits.
func ifElseProgram() sbc.Program {
	loc := 0
	return sbc.Program{Instructions: []sbc.Instruction{
		{Op: sbc.OpSrcFilename, Operand: sbc.Operand{Str: "triangle.shd"}},
		{Op: sbc.OpEntrypoint, Operand: sbc.Operand{Str: "main"}},
		{Op: sbc.OpResource, Operand: sbc.Operand{Resource: sbc.Resource{
			Name: "result", IOKind: "output", TypeSpec: "i32", Location: &loc,
		}}},
		{Op: sbc.OpSrcLineNr, Operand: sbc.Operand{Int: 1}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 1}}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 2}}, Line: 1},
		{Op: sbc.OpCompare, Operand: sbc.Operand{Compare: sbc.CmpLess}, Line: 1},
		{Op: sbc.OpSelectMerge, Operand: sbc.Operand{Label: 1}, Line: 1},
		{Op: sbc.OpBranchConditional, Operand: sbc.Operand{Label: 2}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 10}}, Line: 1},
		{Op: sbc.OpStoreName, Operand: sbc.Operand{Str: "x"}, Line: 1},
		{Op: sbc.OpBranch, Operand: sbc.Operand{Label: 1}, Line: 1},
		{Op: sbc.OpLabel, Operand: sbc.Operand{Label: 2}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 20}}, Line: 1},
		{Op: sbc.OpStoreName, Operand: sbc.Operand{Str: "x"}, Line: 1},
		{Op: sbc.OpBranch, Operand: sbc.Operand{Label: 1}, Line: 1},
		{Op: sbc.OpLabel, Operand: sbc.Operand{Label: 1}, Line: 1},
		{Op: sbc.OpLoadName, Operand: sbc.Operand{Str: "x"}, Line: 1},
		{Op: sbc.OpReturn, Line: 1},
		{Op: sbc.OpFuncEnd},
	}}
}

func TestGenerateIfElse(t *testing.T) {
	mod, err := Generate(ifElseProgram(), ir.StageFragment)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	body := mod.Functions[0].Body
	if len(body) < 2 {
		t.Fatalf("Body has %d statements, want the condition's emit, the reconstructed if/else and the return", len(body))
	}
	stmtIf, ok := body[1].Kind.(ir.StmtIf)
	if !ok {
		t.Fatalf("body[1] = %T, want ir.StmtIf (body[0] is the condition's ir.StmtEmit)", body[1].Kind)
	}
	if len(stmtIf.Accept) == 0 || len(stmtIf.Reject) == 0 {
		t.Fatalf("StmtIf = %+v, want both Accept and Reject populated", stmtIf)
	}
	if _, ok := stmtIf.Accept[len(stmtIf.Accept)-1].Kind.(ir.StmtStore); !ok {
		t.Errorf("last Accept statement = %T, want ir.StmtStore", stmtIf.Accept[len(stmtIf.Accept)-1].Kind)
	}
	if _, ok := stmtIf.Reject[len(stmtIf.Reject)-1].Kind.(ir.StmtStore); !ok {
		t.Errorf("last Reject statement = %T, want ir.StmtStore", stmtIf.Reject[len(stmtIf.Reject)-1].Kind)
	}
	last := body[len(body)-1]
	if _, ok := last.Kind.(ir.StmtReturn); !ok {
		t.Fatalf("last statement = %T, want ir.StmtReturn", last.Kind)
	}
}

// loopProgram builds a co_loop_merge/co_continue/co_break frame around a
// body and continuing block, the shape frontend.lowerLoop and
// frontend.lowerForRange both emit.
func loopProgram() sbc.Program {
	loc := 0
	return sbc.Program{Instructions: []sbc.Instruction{
		{Op: sbc.OpSrcFilename, Operand: sbc.Operand{Str: "triangle.shd"}},
		{Op: sbc.OpEntrypoint, Operand: sbc.Operand{Str: "main"}},
		{Op: sbc.OpResource, Operand: sbc.Operand{Resource: sbc.Resource{
			Name: "result", IOKind: "output", TypeSpec: "i32", Location: &loc,
		}}},
		{Op: sbc.OpSrcLineNr, Operand: sbc.Operand{Int: 1}, Line: 1},
		{Op: sbc.OpLoopMerge, Operand: sbc.Operand{Label: 1, Label2: 2}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 5}}, Line: 1},
		{Op: sbc.OpStoreName, Operand: sbc.Operand{Str: "x"}, Line: 1},
		{Op: sbc.OpContinue, Line: 1},
		{Op: sbc.OpBreak, Line: 1},
		{Op: sbc.OpLabel, Operand: sbc.Operand{Label: 2}, Line: 1},
		{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 6}}, Line: 1},
		{Op: sbc.OpStoreName, Operand: sbc.Operand{Str: "y"}, Line: 1},
		{Op: sbc.OpLabel, Operand: sbc.Operand{Label: 1}, Line: 1},
		{Op: sbc.OpLoadName, Operand: sbc.Operand{Str: "x"}, Line: 1},
		{Op: sbc.OpReturn, Line: 1},
		{Op: sbc.OpFuncEnd},
	}}
}

func TestGenerateLoopBreakContinue(t *testing.T) {
	mod, err := Generate(loopProgram(), ir.StageFragment)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	body := mod.Functions[0].Body
	stmtLoop, ok := body[0].Kind.(ir.StmtLoop)
	if !ok {
		t.Fatalf("body[0] = %T, want ir.StmtLoop", body[0].Kind)
	}
	var sawContinue, sawBreak bool
	for _, s := range stmtLoop.Body {
		switch s.Kind.(type) {
		case ir.StmtContinue:
			sawContinue = true
		case ir.StmtBreak:
			sawBreak = true
		}
	}
	if !sawContinue {
		t.Error("StmtLoop.Body does not contain a StmtContinue")
	}
	if !sawBreak {
		t.Error("StmtLoop.Body does not contain a StmtBreak")
	}
	if len(stmtLoop.Continuing) == 0 {
		t.Fatal("StmtLoop.Continuing is empty, want the store into y")
	}
	if _, ok := stmtLoop.Continuing[len(stmtLoop.Continuing)-1].Kind.(ir.StmtStore); !ok {
		t.Errorf("last Continuing statement = %T, want ir.StmtStore", stmtLoop.Continuing[len(stmtLoop.Continuing)-1].Kind)
	}
}

func TestGenerateBinopTypeMismatch(t *testing.T) {
	prog := sbc.Program{
		Source: "bar = foo + idx\n",
		Instructions: []sbc.Instruction{
			{Op: sbc.OpSrcFilename, Operand: sbc.Operand{Str: "triangle.shd"}},
			{Op: sbc.OpEntrypoint, Operand: sbc.Operand{Str: "main"}},
			{Op: sbc.OpSrcLineNr, Operand: sbc.Operand{Int: 1}, Line: 1},
			{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstFloat, Float: 1.0}}, Line: 1},
			{Op: sbc.OpLoadConstant, Operand: sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 1}}, Line: 1},
			{Op: sbc.OpBinop, Operand: sbc.Operand{Bin: sbc.BinAdd}, Line: 1},
			{Op: sbc.OpReturn, Line: 1},
			{Op: sbc.OpFuncEnd},
		},
	}

	_, err := Generate(prog, ir.StageFragment)
	if err == nil {
		t.Fatal("expected a TypeMismatch error mixing float and int without a cast")
	}
	ecErr, ok := err.(*errorchannel.Error)
	if !ok {
		t.Fatalf("error %v is not an *errorchannel.Error", err)
	}
	if ecErr.Kind != errorchannel.TypeMismatch {
		t.Fatalf("Kind = %v, want TypeMismatch", ecErr.Kind)
	}
	if ecErr.SourceLine != "bar = foo + idx" {
		t.Fatalf("SourceLine = %q, want the literal source line", ecErr.SourceLine)
	}
}
