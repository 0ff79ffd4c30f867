// Package backend implements the Back-end Generator: it replays a flat
// Shader ByteCode program against a symbolic expression stack and
// reconstructs the structured ir.Module the spirv package already knows
// how to compile, matching the SSA-dominance discipline the teacher's
// WGSL lowerer established (see ir.StmtEmit's doc comment).
package backend

import (
	"strings"

	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/sbc"
)

// stackVal is one entry of the generator's symbolic expression stack.
// none marks the source runtime's None sentinel (sbc.ConstNone): it
// never becomes a real ir.Expression, only co_return inspects it.
type stackVal struct {
	handle ir.ExpressionHandle
	none   bool
}

// frame reconstructs one nesting level of structured control flow by
// matching later co_label operands against the merge/false (or
// merge/continue) label pair the Front-end Lowerer bracketed it with. A
// single struct serves both an if and a loop (isLoop tells them apart)
// since a given nesting level is never both at once.
type frame struct {
	isLoop bool

	falseLbl, mergeLbl int
	cond               ir.ExpressionHandle
	accept             ir.Block
	inReject           bool

	contLbl      int
	body         ir.Block
	inContinuing bool
}

type generator struct {
	stage ir.ShaderStage

	types *ir.TypeRegistry
	fn    *ir.Function

	stack  []stackVal
	blocks []ir.Block
	frames []frame

	pendingMerge *int

	locals map[string]uint32
	args   map[string]uint32

	globalVars     []ir.GlobalVariable
	globals        map[string]ir.GlobalVariableHandle
	globalVarTypes []ir.TypeInner

	localTypeHandle []ir.TypeHandle
	localTypeInner  []ir.TypeInner
	argTypes        []ir.TypeInner

	exprTypes []ir.TypeInner
	emitFrom  int

	loadOrigin map[ir.ExpressionHandle]ir.ExpressionHandle

	bindings map[[2]int]string

	filename string
	line     int
	source   string
}

// Generate translates a flat Shader ByteCode program into an ir.Module
// with a single function and entry point, ready for spirv.Backend.Compile.
// stage is the originating SourceFunction's shader stage; Shader ByteCode
// itself carries no stage opcode since the opcode set is shared across
// all three stages.
func Generate(p sbc.Program, stage ir.ShaderStage) (*ir.Module, error) {
	g := &generator{
		stage:      stage,
		types:      ir.NewTypeRegistry(),
		fn:         &ir.Function{},
		locals:     make(map[string]uint32),
		args:       make(map[string]uint32),
		globals:    make(map[string]ir.GlobalVariableHandle),
		loadOrigin: make(map[ir.ExpressionHandle]ir.ExpressionHandle),
		bindings:   make(map[[2]int]string),
		source:     p.Source,
	}
	g.pushBlock()

	for _, instr := range p.Instructions {
		g.line = instr.Line
		switch instr.Op {
		case sbc.OpSrcFilename:
			g.filename = instr.Operand.Str
		case sbc.OpSrcLineNr:
			g.line = int(instr.Operand.Int)
		case sbc.OpEntrypoint:
			g.fn.Name = instr.Operand.Str
		case sbc.OpResource:
			if err := g.addResource(instr.Operand.Resource); err != nil {
				return nil, err
			}
		case sbc.OpFuncEnd:
			// terminal marker, nothing to emit
		default:
			if err := g.step(instr); err != nil {
				return nil, err
			}
		}
	}

	g.flushEmit()
	if len(g.frames) != 0 {
		return nil, g.errf(errorchannel.Internal, nil, "unterminated control-flow frame at end of program")
	}
	body := g.popBlock()
	if len(g.blocks) != 0 {
		return nil, g.errf(errorchannel.Internal, nil, "unbalanced block stack at end of program")
	}
	g.fn.Body = body

	mod := &ir.Module{
		GlobalVariables: g.globalVars,
		Functions:       []ir.Function{*g.fn},
		Types:           g.types.GetTypes(),
		EntryPoints: []ir.EntryPoint{
			{Name: g.fn.Name, Stage: stage, Function: 0},
		},
	}
	return mod, nil
}

// step dispatches a single non-directive, non-resource instruction
// against the symbolic stack and the current block/frame state.
func (g *generator) step(instr sbc.Instruction) error {
	switch instr.Op {
	case sbc.OpLoadConstant:
		return g.loadConstant(instr.Operand.Const)
	case sbc.OpLoadName:
		return g.loadName(instr.Operand.Str)
	case sbc.OpStoreName:
		return g.storeName(instr.Operand.Str)
	case sbc.OpLoadIndex:
		return g.loadIndex()
	case sbc.OpStoreIndex:
		return g.errf(errorchannel.UnsupportedFeature, nil,
			"dynamic-index assignment is not supported; assign to the whole local instead")
	case sbc.OpLoadAttr:
		return g.loadAttr(instr.Operand.Str)
	case sbc.OpStoreAttr:
		return g.storeAttr(instr.Operand.Str)
	case sbc.OpLoadGlobal:
		// The pushed value is never used: its only purpose is as a
		// call-target marker immediately consumed by the co_call_builtin
		// that follows, and that instruction's Call.Name already carries
		// the resolved name. Treating this as a stack no-op keeps the
		// value stack balanced without the backend re-resolving names.
		return nil
	case sbc.OpCall, sbc.OpCallBuiltin:
		return g.call(instr.Operand.Call)
	case sbc.OpBinop:
		return g.binop(instr.Operand.Bin)
	case sbc.OpUnop:
		return g.unop(instr.Operand.Un)
	case sbc.OpCompare:
		return g.compare(instr.Operand.Compare)
	case sbc.OpPopTop:
		g.pop()
		return nil
	case sbc.OpDupTop:
		g.push(g.stack[len(g.stack)-1])
		return nil
	case sbc.OpRotate:
		return g.errf(errorchannel.Internal, nil, "bare co_rotate is never produced by this compiler's lowerer")
	case sbc.OpLabel:
		return g.label(instr.Operand.Label)
	case sbc.OpBranch:
		// Pure unconditional jumps carry no information the frame-label
		// matching in label() doesn't already reconstruct.
		return nil
	case sbc.OpSelectMerge:
		lbl := instr.Operand.Label
		g.pendingMerge = &lbl
		return nil
	case sbc.OpBranchConditional:
		return g.branchConditional(instr.Operand.Label)
	case sbc.OpLoopMerge:
		return g.loopMerge(instr.Operand.Label, instr.Operand.Label2)
	case sbc.OpContinue:
		g.append(ir.StmtContinue{})
		return nil
	case sbc.OpBreak:
		g.append(ir.StmtBreak{})
		return nil
	case sbc.OpReturn:
		return g.ret()
	default:
		return g.errf(errorchannel.Internal, nil, "unhandled opcode %s", instr.Op)
	}
}

func (g *generator) branchConditional(falseLbl int) error {
	cond := g.pop()
	if cond.none {
		return g.errf(errorchannel.Internal, nil, "branch condition is the None sentinel")
	}
	if g.pendingMerge == nil {
		return g.errf(errorchannel.Internal, nil, "co_branch_conditional with no preceding co_select_merge")
	}
	f := frame{falseLbl: falseLbl, mergeLbl: *g.pendingMerge, cond: cond.handle}
	g.pendingMerge = nil
	// Flush into the enclosing block *before* descending into the accept
	// block, so the condition's defining expression dominates the branch
	// instead of appearing inside whichever arm happens to append first.
	g.flushEmit()
	g.frames = append(g.frames, f)
	g.pushBlock()
	return nil
}

func (g *generator) loopMerge(mergeLbl, contLbl int) error {
	g.flushEmit()
	g.frames = append(g.frames, frame{isLoop: true, mergeLbl: mergeLbl, contLbl: contLbl})
	g.pushBlock()
	return nil
}

func (g *generator) label(lbl int) error {
	if len(g.frames) == 0 {
		return g.errf(errorchannel.Internal, nil, "co_label %d with no open control-flow frame", lbl)
	}
	// Flush whatever is pending into the block about to be closed, so no
	// expression straddles the boundary into the following block.
	g.flushEmit()
	i := len(g.frames) - 1
	f := g.frames[i]
	switch {
	// A short-circuit and/or reuses the merge label as its own false
	// target (frontend.lowerShortCircuit never allocates a separate
	// falseLbl), so the first and only label this frame ever sees must
	// close it directly rather than open a reject block.
	case !f.isLoop && lbl == f.mergeLbl && (f.inReject || f.falseLbl == f.mergeLbl):
		var reject ir.Block
		if f.inReject {
			reject = g.popBlock()
		} else {
			f.accept = g.popBlock()
		}
		g.frames = g.frames[:i]
		g.append(ir.StmtIf{Condition: f.cond, Accept: f.accept, Reject: reject})
	case !f.isLoop && !f.inReject && lbl == f.falseLbl:
		f.accept = g.popBlock()
		f.inReject = true
		g.pushBlock()
		g.frames[i] = f
	case f.isLoop && !f.inContinuing && lbl == f.contLbl:
		f.body = g.popBlock()
		f.inContinuing = true
		g.pushBlock()
		g.frames[i] = f
	case f.isLoop && lbl == f.mergeLbl:
		continuing := g.popBlock()
		g.frames = g.frames[:i]
		g.append(ir.StmtLoop{Body: f.body, Continuing: continuing})
	default:
		return g.errf(errorchannel.Internal, nil, "co_label %d does not match the open control-flow frame", lbl)
	}
	return nil
}

func (g *generator) ret() error {
	v := g.pop()
	if v.none {
		if g.stage == ir.StageFragment {
			g.append(ir.StmtKill{})
			return nil
		}
		g.append(ir.StmtReturn{})
		return nil
	}
	h := v.handle
	g.append(ir.StmtReturn{Value: &h})
	return nil
}

func (g *generator) loadConstant(c sbc.Const) error {
	if c.Kind == sbc.ConstNone {
		g.push(stackVal{none: true})
		return nil
	}
	lit, t := literalFor(c)
	h := g.addExpr(ir.Literal{Value: lit}, t)
	g.push(stackVal{handle: h})
	return nil
}

func literalFor(c sbc.Const) (ir.LiteralValue, ir.TypeInner) {
	switch c.Kind {
	case sbc.ConstFloat:
		return ir.LiteralF32(float32(c.Float)), ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}
	case sbc.ConstBool:
		return ir.LiteralBool(c.Bool), ir.ScalarType{Kind: ir.ScalarBool, Width: 1}
	default: // sbc.ConstInt
		return ir.LiteralI32(int32(c.Int)), ir.ScalarType{Kind: ir.ScalarSint, Width: 4}
	}
}

func (g *generator) loadName(name string) error {
	if idx, ok := g.locals[name]; ok {
		ptrType := ir.PointerType{Base: g.localTypeHandle[idx], Space: ir.SpaceFunction}
		ptr := g.addExpr(ir.ExprLocalVariable{Variable: idx}, ptrType)
		val := g.addExpr(ir.ExprLoad{Pointer: ptr}, g.localTypeInner[idx])
		g.loadOrigin[val] = ptr
		g.push(stackVal{handle: val})
		return nil
	}
	if idx, ok := g.args[name]; ok {
		val := g.addExpr(ir.ExprFunctionArgument{Index: idx}, g.argTypes[idx])
		g.push(stackVal{handle: val})
		return nil
	}
	if gh, ok := g.globals[name]; ok {
		t := g.globalVarTypes[gh]
		ref := g.addExpr(ir.ExprGlobalVariable{Variable: gh}, t)
		if g.globalVars[gh].Space == ir.SpaceHandle {
			g.push(stackVal{handle: ref})
			return nil
		}
		val := g.addExpr(ir.ExprLoad{Pointer: ref}, t)
		g.loadOrigin[val] = ref
		g.push(stackVal{handle: val})
		return nil
	}
	return g.errf(errorchannel.Internal, []string{name}, "load of unresolved name %q (frontend should have rejected this)", name)
}

func (g *generator) storeName(name string) error {
	v := g.pop()
	if v.none {
		return g.errf(errorchannel.Internal, []string{name}, "cannot store the None sentinel into %q", name)
	}
	idx, ok := g.locals[name]
	if !ok {
		t := g.exprTypes[v.handle]
		th := g.internTypeInner(t)
		idx = uint32(len(g.fn.LocalVars))
		g.fn.LocalVars = append(g.fn.LocalVars, ir.LocalVariable{Name: name, Type: th})
		g.locals[name] = idx
		g.localTypeHandle = append(g.localTypeHandle, th)
		g.localTypeInner = append(g.localTypeInner, t)
	}
	ptrType := ir.PointerType{Base: g.localTypeHandle[idx], Space: ir.SpaceFunction}
	ptr := g.addExpr(ir.ExprLocalVariable{Variable: idx}, ptrType)
	g.append(ir.StmtStore{Pointer: ptr, Value: v.handle})
	return nil
}

func (g *generator) loadIndex() error {
	idx := g.pop()
	base := g.pop()
	if idx.none || base.none {
		return g.errf(errorchannel.Internal, nil, "index operands cannot be the None sentinel")
	}
	elem, err := g.elementTypeOf(g.exprTypes[base.handle])
	if err != nil {
		return err
	}
	h := g.addExpr(ir.ExprAccess{Base: base.handle, Index: idx.handle}, elem)
	g.push(stackVal{handle: h})
	return nil
}

func (g *generator) loadAttr(name string) error {
	base := g.pop()
	if base.none {
		return g.errf(errorchannel.Internal, nil, "cannot access an attribute of the None sentinel")
	}
	idx, ok := swizzleIndexFor(name)
	if !ok {
		return g.errf(errorchannel.UnsupportedFeature, nil, "unsupported attribute access %q", name)
	}
	vt, ok := g.exprTypes[base.handle].(ir.VectorType)
	if !ok {
		return g.errf(errorchannel.TypeMismatch, nil, "component access %q on a non-vector value", name)
	}
	h := g.addExpr(ir.ExprAccessIndex{Base: base.handle, Index: idx}, vt.Scalar)
	g.push(stackVal{handle: h})
	return nil
}

func (g *generator) storeAttr(name string) error {
	base := g.pop()  // CPython STORE_ATTR: TOS is the object
	val := g.pop()   // TOS1 is the value being stored
	if base.none || val.none {
		return g.errf(errorchannel.Internal, nil, "attribute store operands cannot be the None sentinel")
	}
	idx, ok := swizzleIndexFor(name)
	if !ok {
		return g.errf(errorchannel.UnsupportedFeature, nil, "unsupported attribute store %q", name)
	}
	origin, ok := g.originOf(base.handle)
	if !ok {
		return g.errf(errorchannel.UnsupportedFeature, nil, "component assignment target must be a local variable")
	}
	vt, ok := g.exprTypes[base.handle].(ir.VectorType)
	if !ok {
		return g.errf(errorchannel.TypeMismatch, nil, "component store %q on a non-vector value", name)
	}
	comps := make([]ir.ExpressionHandle, vt.Size)
	for k := range comps {
		if uint32(k) == idx {
			comps[k] = val.handle
			continue
		}
		comps[k] = g.addExpr(ir.ExprAccessIndex{Base: base.handle, Index: uint32(k)}, vt.Scalar)
	}
	composed := g.addExpr(ir.ExprCompose{Type: g.internTypeInner(vt), Components: comps}, vt)
	g.append(ir.StmtStore{Pointer: origin, Value: composed})
	return nil
}

func swizzleIndexFor(name string) (uint32, bool) {
	if len(name) != 1 {
		return 0, false
	}
	switch name[0] {
	case 'x', 'r':
		return 0, true
	case 'y', 'g':
		return 1, true
	case 'z', 'b':
		return 2, true
	case 'w', 'a':
		return 3, true
	}
	return 0, false
}

func (g *generator) binop(op sbc.BinOp) error {
	b := g.pop()
	a := g.pop()
	if a.none || b.none {
		return g.errf(errorchannel.Internal, nil, "binary operator operand cannot be the None sentinel")
	}
	at, bt := g.exprTypes[a.handle], g.exprTypes[b.handle]
	resType, err := ir.Promote(at, bt)
	if err != nil {
		return g.errf(errorchannel.TypeMismatch, nil, "%s", err)
	}
	if op == sbc.BinPow {
		bh := b.handle
		h := g.addExpr(ir.ExprMath{Fun: ir.MathPow, Arg: a.handle, Arg1: &bh}, resType)
		g.push(stackVal{handle: h})
		return nil
	}
	irOp, ok := binaryOpTable[op]
	if !ok {
		return g.errf(errorchannel.Internal, nil, "unsupported binary operator %s", op)
	}
	h := g.addExpr(ir.ExprBinary{Op: irOp, Left: a.handle, Right: b.handle}, resType)
	g.push(stackVal{handle: h})
	return nil
}

var binaryOpTable = map[sbc.BinOp]ir.BinaryOperator{
	sbc.BinAdd: ir.BinaryAdd, sbc.BinSub: ir.BinarySubtract,
	sbc.BinMul: ir.BinaryMultiply, sbc.BinDiv: ir.BinaryDivide,
	sbc.BinMod: ir.BinaryModulo,
	// Matrix multiply reuses the generic multiply operator, matching
	// WGSL's operator-overloaded "*" — the codegen dispatches on the
	// operand types, not on a distinct opcode.
	sbc.BinMatMul:     ir.BinaryMultiply,
	sbc.BinBitAnd:     ir.BinaryAnd,
	sbc.BinBitOr:      ir.BinaryInclusiveOr,
	sbc.BinBitXor:     ir.BinaryExclusiveOr,
	sbc.BinShiftLeft:  ir.BinaryShiftLeft,
	sbc.BinShiftRight: ir.BinaryShiftRight,
}

func (g *generator) unop(op sbc.UnOp) error {
	a := g.pop()
	if a.none {
		return g.errf(errorchannel.Internal, nil, "unary operator operand cannot be the None sentinel")
	}
	var irOp ir.UnaryOperator
	switch op {
	case sbc.UnNeg:
		irOp = ir.UnaryNegate
	case sbc.UnNot:
		irOp = ir.UnaryLogicalNot
	case sbc.UnInvert:
		irOp = ir.UnaryBitwiseNot
	}
	h := g.addExpr(ir.ExprUnary{Op: irOp, Expr: a.handle}, g.exprTypes[a.handle])
	g.push(stackVal{handle: h})
	return nil
}

var compareOpTable = map[sbc.CompareOp]ir.BinaryOperator{
	sbc.CmpEqual: ir.BinaryEqual, sbc.CmpNotEqual: ir.BinaryNotEqual,
	sbc.CmpLess: ir.BinaryLess, sbc.CmpLessEqual: ir.BinaryLessEqual,
	sbc.CmpGreater: ir.BinaryGreater, sbc.CmpGreaterEqual: ir.BinaryGreaterEqual,
}

func (g *generator) compare(op sbc.CompareOp) error {
	b := g.pop()
	a := g.pop()
	if a.none || b.none {
		return g.errf(errorchannel.Internal, nil, "compare operand cannot be the None sentinel")
	}
	if _, err := ir.Promote(g.exprTypes[a.handle], g.exprTypes[b.handle]); err != nil {
		return g.errf(errorchannel.TypeMismatch, nil, "%s", err)
	}
	irOp := compareOpTable[op]
	h := g.addExpr(ir.ExprBinary{Op: irOp, Left: a.handle, Right: b.handle}, ir.ScalarType{Kind: ir.ScalarBool, Width: 1})
	g.push(stackVal{handle: h})
	return nil
}

func (g *generator) elementTypeOf(t ir.TypeInner) (ir.TypeInner, error) {
	switch v := t.(type) {
	case ir.VectorType:
		return v.Scalar, nil
	case ir.MatrixType:
		return ir.VectorType{Size: v.Rows, Scalar: v.Scalar}, nil
	case ir.ArrayType:
		typ, ok := g.types.Lookup(v.Base)
		if !ok {
			return nil, errorchannel.Newf(errorchannel.Internal, g.filename, g.line, nil, "array element type handle %d not registered", v.Base)
		}
		return typ.Inner, nil
	default:
		return nil, errorchannel.Newf(errorchannel.TypeMismatch, g.filename, g.line, nil, "cannot index into a %T value", t)
	}
}

func (g *generator) originOf(h ir.ExpressionHandle) (ir.ExpressionHandle, bool) {
	p, ok := g.loadOrigin[h]
	return p, ok
}

// addExpr appends a new SSA expression and its inferred type, keeping
// fn.Expressions, g.exprTypes, and fn.ExpressionTypes in lockstep.
func (g *generator) addExpr(kind ir.ExpressionKind, t ir.TypeInner) ir.ExpressionHandle {
	h := ir.ExpressionHandle(len(g.fn.Expressions))
	g.fn.Expressions = append(g.fn.Expressions, ir.Expression{Kind: kind})
	g.exprTypes = append(g.exprTypes, t)
	g.fn.ExpressionTypes = append(g.fn.ExpressionTypes, ir.TypeResolution{Value: t})
	return h
}

func (g *generator) push(v stackVal) { g.stack = append(g.stack, v) }

func (g *generator) pop() stackVal {
	n := len(g.stack) - 1
	v := g.stack[n]
	g.stack = g.stack[:n]
	return v
}

// popN pops n values, returning them in their original left-to-right
// (evaluation) order.
func (g *generator) popN(n int) []stackVal {
	start := len(g.stack) - n
	if start < 0 {
		start = 0
	}
	out := append([]stackVal(nil), g.stack[start:]...)
	g.stack = g.stack[:start]
	return out
}

func (g *generator) pushBlock() { g.blocks = append(g.blocks, ir.Block{}) }

func (g *generator) popBlock() ir.Block {
	n := len(g.blocks) - 1
	b := g.blocks[n]
	g.blocks = g.blocks[:n]
	return b
}

// flushEmit marks every expression produced since the last flush as
// visible to subsequent statements, per ir.StmtEmit's SSA-dominance
// contract — the same discipline the teacher's WGSL lowerer applies at
// every declaration point (wgsl/lower.go's lowerLocalConst).
func (g *generator) flushEmit() {
	if g.emitFrom >= len(g.fn.Expressions) {
		return
	}
	rng := ir.Range{Start: ir.ExpressionHandle(g.emitFrom), End: ir.ExpressionHandle(len(g.fn.Expressions))}
	g.rawAppend(ir.StmtEmit{Range: rng})
	g.emitFrom = len(g.fn.Expressions)
}

func (g *generator) rawAppend(kind ir.StatementKind) {
	top := len(g.blocks) - 1
	g.blocks[top] = append(g.blocks[top], ir.Statement{Kind: kind})
}

func (g *generator) append(kind ir.StatementKind) {
	g.flushEmit()
	g.rawAppend(kind)
}

func (g *generator) errf(kind errorchannel.Kind, vars []string, format string, args ...interface{}) error {
	if src := sourceLine(g.source, g.line); src != "" {
		return errorchannel.New(kind, g.filename, g.line, src, vars...)
	}
	return errorchannel.Newf(kind, g.filename, g.line, vars, format, args...)
}

// sourceLine returns the 1-indexed line of source text, trimmed, or ""
// when source is unavailable or line is out of range. Mirrors
// frontend's helper of the same name; the backend has no dependency on
// package frontend's internals, so it keeps its own copy.
func sourceLine(source string, line int) string {
	if source == "" || line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
