package frontend

import (
	"fmt"

	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/pybc"
	"github.com/gogpu/shaderbc/sbc"
)

// loopFrame tracks one nesting level of "continue"/"break" targets while
// the lowerer walks a pybc instruction stream. Both fields are pybc byte
// offsets (the jump targets the host bytecode actually encodes), not
// Shader ByteCode label ids.
type loopFrame struct {
	continueOffset int
	mergeOffset    int
}

// lowerer holds the mutable state of a single Lower call: the decoded
// instruction stream, an offset->index index for jump resolution, the
// output program being built, and the nested loop/label bookkeeping the
// recursive-descent walk needs.
type lowerer struct {
	fn      SourceFunction
	instrs  []pybc.Instruction
	offset  map[int]int
	prog    sbc.Program
	nextLbl int
	nextTmp int
	loops   []loopFrame
	line    int
	locals  map[string]bool
}

// Lower translates a SourceFunction's bytecode trace into a flat Shader
// ByteCode Program. It is the Front-end Lowerer's sole entry point: the
// backend package never looks at pybc.Function, only at the sbc.Program
// this returns.
//
// Lower recognizes a restricted, well-structured subset of stack-VM
// bytecode: straight-line arithmetic, name/attribute/subscript access,
// calls to stdlib or builtin-constructor names, if/elif/else chains,
// single-condition while loops compiled with POP_JUMP_IF_FALSE headers,
// "for i in range(...)" loops compiled with the GET_ITER/FOR_ITER
// iterator protocol, short-circuit and/or, and the three tuple
// pack/unpack shapes pybc.DetectTuplePack and pybc.RotatePermutation
// recognize. Anything else (recursion, closures, iteration over
// anything but range(), a tuple escaping its pack/unpack window, a name
// that resolves to nothing) is an *errorchannel.Error.
func Lower(fn SourceFunction) (sbc.Program, error) {
	instrs, err := pybc.Decode(fn.Code)
	if err != nil {
		return sbc.Program{}, fmt.Errorf("frontend: decoding %s: %w", fn.Name, err)
	}

	l := &lowerer{
		fn:     fn,
		instrs: instrs,
		offset: make(map[int]int, len(instrs)),
		locals: make(map[string]bool),
	}
	for i, in := range instrs {
		l.offset[in.Offset] = i
	}

	l.emit(sbc.OpSrcFilename, sbc.Operand{Str: fn.Filename})
	l.emit(sbc.OpEntrypoint, sbc.Operand{Str: fn.Name})
	for _, p := range fn.Parameters {
		l.locals[p.Name] = true
		l.emit(sbc.OpResource, sbc.Operand{Resource: paramToResource(p)})
	}

	if err := l.lowerRange(0, len(instrs)); err != nil {
		return sbc.Program{}, err
	}
	l.emit(sbc.OpFuncEnd, sbc.Operand{})
	l.prog.Source = fn.Source
	return l.prog, nil
}

func paramToResource(p Parameter) sbc.Resource {
	r := sbc.Resource{Name: p.Name, IOKind: p.IOKind.String(), TypeSpec: p.TypeSpec}
	r.Builtin = p.Slot.Builtin
	r.Location = p.Slot.Location
	r.Set = p.Slot.Set
	r.Binding = p.Slot.Binding
	return r
}

func (l *lowerer) emit(op sbc.Opcode, operand sbc.Operand) {
	l.prog.Instructions = append(l.prog.Instructions, sbc.Instruction{Op: op, Operand: operand, Line: l.line})
}

func (l *lowerer) newLabel() int {
	l.nextLbl++
	return l.nextLbl
}

func (l *lowerer) newTemp() string {
	l.nextTmp++
	return fmt.Sprintf("$sc%d", l.nextTmp)
}

func (l *lowerer) indexAtOffset(offset int) int {
	if idx, ok := l.offset[offset]; ok {
		return idx
	}
	return len(l.instrs)
}

func (l *lowerer) errf(kind errorchannel.Kind, in pybc.Instruction, vars []string, format string, args ...interface{}) error {
	if src := sourceLine(l.fn.Source, in.Line); src != "" {
		return errorchannel.New(kind, l.fn.Filename, in.Line, src, vars...)
	}
	return errorchannel.Newf(kind, l.fn.Filename, in.Line, vars, format, args...)
}

func isUnconditionalJump(op pybc.Opcode) bool {
	return op == pybc.OpJumpForward || op == pybc.OpJumpAbsolute
}

// lowerRange walks instrs[start:end), emitting straight-line
// instructions directly and recursing into lowerIf/lowerLoop/
// lowerTernary/lowerShortCircuit for the control-flow and
// conditional-expression shapes it recognizes. A top-level unconditional
// jump that targets the innermost loop's continuing or merge offset is
// the "continue"/"break" exit from that loop; anything else escaping
// the range is a rejected UnsupportedFeature.
func (l *lowerer) lowerRange(start, end int) error {
	for i := start; i < end; {
		in := l.instrs[i]
		if in.Line != 0 && in.Line != l.line {
			l.line = in.Line
			l.emit(sbc.OpSrcLineNr, sbc.Operand{Int: int64(l.line)})
		}

		if tp, ok := pybc.DetectTuplePack(l.instrs, i); ok {
			consumed, err := l.lowerTuplePack(tp, i, end)
			if err != nil {
				return err
			}
			i += consumed
			continue
		}
		if in.Op.IsRotate() {
			if consumed, handled, err := l.tryLowerRotateUnpack(i, end); err != nil {
				return err
			} else if handled {
				i += consumed
				continue
			}
		}

		switch {
		case in.Op == pybc.OpLoadGlobal:
			if consumed, ok, err := l.lowerForRange(i, end); err != nil {
				return err
			} else if ok {
				i += consumed
				continue
			}
			consumed, err := l.lowerSimple(i)
			if err != nil {
				return err
			}
			i += consumed
			continue
		case in.Op == pybc.OpPopJumpIfFalse && in.Ternary:
			consumed, err := l.lowerTernary(i, end)
			if err != nil {
				return err
			}
			i += consumed
			continue
		case in.Op == pybc.OpPopJumpIfFalse:
			if consumed, ok, err := l.lowerLoop(i, end); err != nil {
				return err
			} else if ok {
				i += consumed
				continue
			}
			consumed, err := l.lowerConditional(i, end)
			if err != nil {
				return err
			}
			i += consumed
			continue
		case in.Op == pybc.OpJumpIfFalseOrPop || in.Op == pybc.OpJumpIfTrueOrPop:
			consumed, err := l.lowerShortCircuit(i, in.Op == pybc.OpJumpIfTrueOrPop)
			if err != nil {
				return err
			}
			i += consumed
			continue
		case isUnconditionalJump(in.Op):
			if len(l.loops) == 0 {
				return l.errf(errorchannel.UnsupportedFeature, in, nil, "unstructured jump outside any loop")
			}
			top := l.loops[len(l.loops)-1]
			switch in.Arg {
			case top.continueOffset:
				l.emit(sbc.OpContinue, sbc.Operand{})
			case top.mergeOffset:
				l.emit(sbc.OpBreak, sbc.Operand{})
			default:
				return l.errf(errorchannel.UnsupportedFeature, in, nil, "jump target does not match any enclosing loop's continue or break point")
			}
			i++
			continue
		}

		consumed, err := l.lowerSimple(i)
		if err != nil {
			return err
		}
		i += consumed
	}
	return nil
}

// lowerSimple emits the single Shader ByteCode instruction (or small
// fixed sequence) corresponding to one ordinary, non-control-flow pybc
// instruction, returning how many pybc instructions it consumed (always
// 1: CALL_METHOD/CALL_FUNCTION read the preceding LOAD_METHOD/
// LOAD_GLOBAL's name, but that instruction was already consumed on its
// own).
func (l *lowerer) lowerSimple(i int) (int, error) {
	in := l.instrs[i]
	switch in.Op {
	case pybc.OpPopTop:
		l.emit(sbc.OpPopTop, sbc.Operand{})
	case pybc.OpDupTop:
		l.emit(sbc.OpDupTop, sbc.Operand{})
	case pybc.OpUnaryNegative:
		l.emit(sbc.OpUnop, sbc.Operand{Un: sbc.UnNeg})
	case pybc.OpUnaryNot:
		l.emit(sbc.OpUnop, sbc.Operand{Un: sbc.UnNot})
	case pybc.OpUnaryInvert:
		l.emit(sbc.OpUnop, sbc.Operand{Un: sbc.UnInvert})
	case pybc.OpBinaryAdd:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinAdd})
	case pybc.OpBinarySubtract:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinSub})
	case pybc.OpBinaryMultiply:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinMul})
	case pybc.OpBinaryTrueDivide, pybc.OpBinaryFloorDivide:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinDiv})
	case pybc.OpBinaryModulo:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinMod})
	case pybc.OpBinaryPower:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinPow})
	case pybc.OpBinaryMatrixMultiply:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinMatMul})
	case pybc.OpBinaryAnd:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinBitAnd})
	case pybc.OpBinaryOr:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinBitOr})
	case pybc.OpBinaryXor:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinBitXor})
	case pybc.OpBinaryLshift:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinShiftLeft})
	case pybc.OpBinaryRshift:
		l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinShiftRight})
	case pybc.OpCompareOp:
		cmp, err := compareOpFromArg(in.Arg)
		if err != nil {
			return 0, l.errf(errorchannel.UnsupportedFeature, in, nil, "%s", err)
		}
		l.emit(sbc.OpCompare, sbc.Operand{Compare: cmp})
	case pybc.OpBinarySubscr:
		l.emit(sbc.OpLoadIndex, sbc.Operand{})
	case pybc.OpStoreSubscr:
		l.emit(sbc.OpStoreIndex, sbc.Operand{})
	case pybc.OpLoadConst:
		c, err := l.fn.Code.ResolveConst(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		l.emit(sbc.OpLoadConstant, sbc.Operand{Const: toConst(c)})
	case pybc.OpLoadFast:
		name, err := l.fn.Code.ResolveVarname(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		l.emit(sbc.OpLoadName, sbc.Operand{Str: name})
	case pybc.OpStoreFast:
		name, err := l.fn.Code.ResolveVarname(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		l.locals[name] = true
		l.emit(sbc.OpStoreName, sbc.Operand{Str: name})
	case pybc.OpLoadGlobal:
		name, err := l.fn.Code.ResolveName(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		if !l.resolvesGlobal(name) {
			return 0, l.errf(errorchannel.UnresolvedName, in, []string{name}, "reference to undefined name %q", name)
		}
		l.emit(sbc.OpLoadGlobal, sbc.Operand{Str: name})
	case pybc.OpLoadAttr:
		name, err := l.fn.Code.ResolveName(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		l.emit(sbc.OpLoadAttr, sbc.Operand{Str: name})
	case pybc.OpStoreAttr:
		name, err := l.fn.Code.ResolveName(in)
		if err != nil {
			return 0, fmt.Errorf("frontend: %w", err)
		}
		l.emit(sbc.OpStoreAttr, sbc.Operand{Str: name})
	case pybc.OpLoadMethod:
		// The callee's name is folded into the upcoming co_call/
		// co_call_builtin operand rather than pushed as a value — see
		// lowerCall.
		return 1, nil
	case pybc.OpCallMethod, pybc.OpCallFunction:
		return l.lowerCall(i)
	case pybc.OpReturnValue:
		l.emit(sbc.OpReturn, sbc.Operand{})
	case pybc.OpBuildTuple, pybc.OpUnpackSequence:
		return 0, l.errf(errorchannel.UnsupportedTupleUse, in, nil, "tuple used outside a recognized pack/unpack assignment")
	default:
		return 0, l.errf(errorchannel.UnsupportedFeature, in, nil, "unsupported bytecode instruction %s", in.Op)
	}
	return 1, nil
}

// lowerCall resolves the callee name carried by the immediately
// preceding LOAD_METHOD/LOAD_ATTR/LOAD_GLOBAL and emits a single
// co_call_builtin, per spec.md §4.3 point 3: the Front-end
// Lowerer resolves call targets, the Back-end Generator never does.
func (l *lowerer) lowerCall(i int) (int, error) {
	in := l.instrs[i]
	if i == 0 {
		return 0, l.errf(errorchannel.BadCall, in, nil, "call with no resolvable callee")
	}
	prev := l.instrs[i-1]
	var name string
	var err error
	switch prev.Op {
	case pybc.OpLoadMethod, pybc.OpLoadAttr:
		name, err = l.fn.Code.ResolveName(prev)
	case pybc.OpLoadGlobal:
		name, err = l.fn.Code.ResolveName(prev)
	default:
		return 0, l.errf(errorchannel.BadCall, in, nil, "call target is not a resolvable name")
	}
	if err != nil {
		return 0, fmt.Errorf("frontend: %w", err)
	}
	if isCallableGlobal(name) {
		l.emit(sbc.OpCallBuiltin, sbc.Operand{Call: sbc.Call{Name: name, Argc: in.Arg}})
	} else {
		return 0, l.errf(errorchannel.BadCall, in, []string{name}, "call to unknown function %q", name)
	}
	return 1, nil
}

// isCallableGlobal reports whether name is something lowerCall may turn
// into a co_call_builtin: a stdlib math function, a texture/sampler
// method, or a type-constructor name used as a composite literal (e.g.
// "vec3(a, b, c)").
func isCallableGlobal(name string) bool {
	if isStdlibCall(name) || isTextureMethod(stdlibName(name)) {
		return true
	}
	_, err := ir.ParseType(name)
	return err == nil
}

func isTextureMethod(name string) bool {
	switch name {
	case "sample", "read", "load", "write", "dimensions":
		return true
	default:
		return false
	}
}

// resolvesGlobal reports whether name is a known stdlib call, a type
// constructor name (vec3, mat4x4, ...), or a texture/sampler method —
// the closed set of non-local names spec.md §4.2 says the lowerer must
// recognize. Anything else is an errorchannel.UnresolvedName.
func (l *lowerer) resolvesGlobal(name string) bool {
	return isCallableGlobal(name)
}

func compareOpFromArg(arg int) (sbc.CompareOp, error) {
	switch arg {
	case 0:
		return sbc.CmpLess, nil
	case 1:
		return sbc.CmpLessEqual, nil
	case 2:
		return sbc.CmpEqual, nil
	case 3:
		return sbc.CmpNotEqual, nil
	case 4:
		return sbc.CmpGreater, nil
	case 5:
		return sbc.CmpGreaterEqual, nil
	default:
		return 0, fmt.Errorf("unknown COMPARE_OP argument %d", arg)
	}
}

func toConst(v interface{}) sbc.Const {
	switch n := v.(type) {
	case nil:
		return sbc.Const{Kind: sbc.ConstNone}
	case bool:
		return sbc.Const{Kind: sbc.ConstBool, Bool: n}
	case int:
		return sbc.Const{Kind: sbc.ConstInt, Int: int64(n)}
	case int64:
		return sbc.Const{Kind: sbc.ConstInt, Int: n}
	case float32:
		return sbc.Const{Kind: sbc.ConstFloat, Float: float64(n)}
	case float64:
		return sbc.Const{Kind: sbc.ConstFloat, Float: n}
	default:
		return sbc.Const{Kind: sbc.ConstNone}
	}
}

// lowerTuplePack emits a "a, b = x, y" style assignment recognized by
// pybc.DetectTuplePack: the BUILD_TUPLE/UNPACK_SEQUENCE pair is dropped
// entirely and the n values already computed on the stack are bound
// directly to their n store targets, which must immediately follow
// (optionally interleaved with POP_TOP for an elided "_" target).
func (l *lowerer) lowerTuplePack(tp pybc.TuplePack, i, end int) (int, error) {
	idx := i + 2 // past BUILD_TUPLE, UNPACK_SEQUENCE
	bound := 0
	for bound < tp.Size {
		if idx >= end {
			return 0, l.errf(errorchannel.UnsupportedTupleUse, l.instrs[i], nil, "tuple unpack window ran past its enclosing block")
		}
		in := l.instrs[idx]
		switch in.Op {
		case pybc.OpStoreFast:
			name, err := l.fn.Code.ResolveVarname(in)
			if err != nil {
				return 0, fmt.Errorf("frontend: %w", err)
			}
			l.locals[name] = true
			l.emit(sbc.OpStoreName, sbc.Operand{Str: name})
			bound++
		case pybc.OpPopTop:
			l.emit(sbc.OpPopTop, sbc.Operand{})
			bound++
		default:
			return 0, l.errf(errorchannel.UnsupportedTupleUse, in, nil, "tuple unpack target %d is not a plain store", bound)
		}
		idx++
	}
	return idx - i, nil
}

// tryLowerRotateUnpack recognizes the ROT_TWO/THREE/FOUR shape: a run of
// depth value-producing pybc instructions has already been lowered by
// the time this is called (those ran through the normal straight-line
// path), so this only needs to recognize the rotate itself followed by
// depth STORE_FASTs and re-emit the stores in RotatePermutation order.
func (l *lowerer) tryLowerRotateUnpack(i, end int) (int, bool, error) {
	in := l.instrs[i]
	depth := in.Op.RotateDepth()
	perm, ok := pybc.RotatePermutation(depth)
	if !ok {
		return 0, false, nil
	}
	if i+depth >= end {
		return 0, false, nil
	}
	names := make([]string, depth)
	for k := 0; k < depth; k++ {
		store := l.instrs[i+1+k]
		if store.Op != pybc.OpStoreFast {
			return 0, false, nil
		}
		name, err := l.fn.Code.ResolveVarname(store)
		if err != nil {
			return 0, false, fmt.Errorf("frontend: %w", err)
		}
		names[k] = name
	}
	for _, idx := range perm {
		l.locals[names[idx]] = true
		l.emit(sbc.OpStoreName, sbc.Operand{Str: names[idx]})
	}
	return depth + 1, true, nil
}

// lowerConditional lowers a statement-level if/elif/else. instrs[i] is
// the POP_JUMP_IF_FALSE test; its Arg is the false-branch (or merge)
// offset. An unconditional join jump immediately before that offset,
// targeting further still, marks the presence of an else branch.
func (l *lowerer) lowerConditional(i, end int) (int, error) {
	in := l.instrs[i]
	mIdx := l.indexAtOffset(in.Arg)
	trueEnd := mIdx
	hasElse := false
	mergeOffset := in.Arg
	if mIdx-1 > i && mIdx-1 < end && isUnconditionalJump(l.instrs[mIdx-1].Op) && l.instrs[mIdx-1].Arg > in.Arg {
		hasElse = true
		mergeOffset = l.instrs[mIdx-1].Arg
		trueEnd = mIdx - 1
	}

	mergeLbl := l.newLabel()
	falseLbl := l.newLabel()
	l.emit(sbc.OpSelectMerge, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpBranchConditional, sbc.Operand{Label: falseLbl})
	if err := l.lowerRange(i+1, trueEnd); err != nil {
		return 0, err
	}
	l.emit(sbc.OpBranch, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLabel, sbc.Operand{Label: falseLbl})
	if hasElse {
		elseEndIdx := l.indexAtOffset(mergeOffset)
		if err := l.lowerRange(mIdx, elseEndIdx); err != nil {
			return 0, err
		}
		l.emit(sbc.OpBranch, sbc.Operand{Label: mergeLbl})
		l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
		return elseEndIdx - i, nil
	}
	l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
	return mIdx - i, nil
}

// lowerTernary lowers a conditional *expression*: both arms push a
// value, which is bound to a synthetic temporary and reloaded after the
// merge, since naga IR has no phi instruction (ir.StmtIf's doc comment
// is explicit about this — "store them in a LocalVariable").
func (l *lowerer) lowerTernary(i, end int) (int, error) {
	in := l.instrs[i]
	mIdx := l.indexAtOffset(in.Arg)
	if mIdx-1 <= i || mIdx-1 >= end || !isUnconditionalJump(l.instrs[mIdx-1].Op) {
		return 0, l.errf(errorchannel.UnsupportedFeature, in, nil, "malformed conditional expression")
	}
	trueEnd := mIdx - 1
	mergeOffset := l.instrs[mIdx-1].Arg
	falseStart := mIdx
	falseEnd := l.indexAtOffset(mergeOffset)

	tmp := l.newTemp()
	mergeLbl := l.newLabel()
	falseLbl := l.newLabel()
	l.emit(sbc.OpSelectMerge, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpBranchConditional, sbc.Operand{Label: falseLbl})
	if err := l.lowerRange(i+1, trueEnd); err != nil {
		return 0, err
	}
	l.emit(sbc.OpStoreName, sbc.Operand{Str: tmp})
	l.emit(sbc.OpBranch, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLabel, sbc.Operand{Label: falseLbl})
	if err := l.lowerRange(falseStart, falseEnd); err != nil {
		return 0, err
	}
	l.emit(sbc.OpStoreName, sbc.Operand{Str: tmp})
	l.emit(sbc.OpBranch, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLoadName, sbc.Operand{Str: tmp})
	return falseEnd - i, nil
}

// lowerShortCircuit lowers JUMP_IF_FALSE_OR_POP ("and") and
// JUMP_IF_TRUE_OR_POP ("or"): the left operand is already on the stack
// at instrs[i]. Both forms store the left value into a temp before
// testing it so the temp already holds the correct result if the right
// side is never evaluated.
func (l *lowerer) lowerShortCircuit(i int, isOr bool) (int, error) {
	in := l.instrs[i]
	mergeIdx := l.indexAtOffset(in.Arg)
	if mergeIdx <= i {
		return 0, l.errf(errorchannel.UnsupportedFeature, in, nil, "malformed short-circuit expression")
	}
	tmp := l.newTemp()
	mergeLbl := l.newLabel()

	l.emit(sbc.OpDupTop, sbc.Operand{})
	l.emit(sbc.OpStoreName, sbc.Operand{Str: tmp})
	if isOr {
		l.emit(sbc.OpUnop, sbc.Operand{Un: sbc.UnNot})
	}
	l.emit(sbc.OpSelectMerge, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpBranchConditional, sbc.Operand{Label: mergeLbl})
	if err := l.lowerRange(i+1, mergeIdx); err != nil {
		return 0, err
	}
	l.emit(sbc.OpDupTop, sbc.Operand{})
	l.emit(sbc.OpStoreName, sbc.Operand{Str: tmp})
	l.emit(sbc.OpPopTop, sbc.Operand{})
	l.emit(sbc.OpBranch, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
	l.emit(sbc.OpLoadName, sbc.Operand{Str: tmp})
	return mergeIdx - i, nil
}

// lowerLoop lowers a while loop (including "while True"). The canonical
// shape this recognizes: a POP_JUMP_IF_FALSE header test whose
// false-target M is immediately preceded by an unconditional backward
// jump (the back-edge, closing the loop), which is itself immediately
// preceded by an unconditional forward jump to the continuing block —
// the source compiler always emits this explicit fallthrough jump at
// the end of the loop body, even absent a user "continue" statement, so
// the body/continuing split never needs guessing. "for i in
// range(...)" loops compile to a materially different bytecode shape
// (the GET_ITER/FOR_ITER iterator protocol) and are recognized
// separately by lowerForRange.
func (l *lowerer) lowerLoop(i, end int) (int, bool, error) {
	in := l.instrs[i]
	if in.Op != pybc.OpPopJumpIfFalse {
		return 0, false, nil
	}
	mIdx := l.indexAtOffset(in.Arg)
	backIdx := mIdx - 1
	if backIdx <= i || backIdx >= end {
		return 0, false, nil
	}
	back := l.instrs[backIdx]
	if !isUnconditionalJump(back.Op) || back.Arg > in.Offset {
		return 0, false, nil
	}
	contMarkerIdx := backIdx - 1
	if contMarkerIdx <= i {
		return 0, false, nil
	}
	contMarker := l.instrs[contMarkerIdx]
	if !isUnconditionalJump(contMarker.Op) {
		return 0, false, nil
	}
	contOffset := contMarker.Arg
	contIdx := l.indexAtOffset(contOffset)
	if contIdx < i+1 || contIdx > contMarkerIdx {
		return 0, false, nil
	}

	mergeLbl := l.newLabel()
	contLbl := l.newLabel()
	l.emit(sbc.OpLoopMerge, sbc.Operand{Label: mergeLbl, Label2: contLbl})

	l.loops = append(l.loops, loopFrame{continueOffset: contOffset, mergeOffset: in.Arg})

	afterCheck := l.newLabel()
	falseLbl := l.newLabel()
	l.emit(sbc.OpSelectMerge, sbc.Operand{Label: afterCheck})
	l.emit(sbc.OpBranchConditional, sbc.Operand{Label: falseLbl})
	l.emit(sbc.OpBranch, sbc.Operand{Label: afterCheck})
	l.emit(sbc.OpLabel, sbc.Operand{Label: falseLbl})
	l.emit(sbc.OpBreak, sbc.Operand{})
	l.emit(sbc.OpLabel, sbc.Operand{Label: afterCheck})

	if err := l.lowerRange(i+1, contMarkerIdx); err != nil {
		return 0, false, err
	}
	l.emit(sbc.OpLabel, sbc.Operand{Label: contLbl})
	if err := l.lowerRange(contIdx, backIdx); err != nil {
		return 0, false, err
	}

	l.loops = l.loops[:len(l.loops)-1]
	l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
	return mIdx - i, true, nil
}

// lowerForRange recognizes "for i in range(a[, b[, c]]): ..." — the
// iterator-protocol shape real host bytecode emits for a for-range
// loop, materially different from the while-loop header-test shape
// lowerLoop matches. The host compiler keeps range's name-resolving
// LOAD_GLOBAL directly adjacent to its CALL (the same convention
// lowerCall relies on for every other builtin call), so start/stop/step
// have already been pushed by the ordinary straight-line walk by the
// time this runs; it binds them to synthetic locals in stack-pop order
// and synthesizes the counter init/test/increment the host bytecode
// never spells out explicitly (FOR_ITER performs it internally).
//
// range(n) is range(0,n,1). Per spec, start and stop may be runtime
// expressions, but step must be a compile-time positive integer
// constant — range's only use of host bytecode as anything but a
// counter description.
func (l *lowerer) lowerForRange(i, end int) (int, bool, error) {
	in := l.instrs[i]
	name, err := l.fn.Code.ResolveName(in)
	if err != nil || name != "range" {
		return 0, false, nil
	}
	if i+4 >= end {
		return 0, false, nil
	}
	callIn := l.instrs[i+1]
	if callIn.Op != pybc.OpCallFunction && callIn.Op != pybc.OpCallMethod {
		return 0, false, nil
	}
	getIterIn := l.instrs[i+2]
	if getIterIn.Op != pybc.OpGetIter {
		return 0, false, nil
	}
	forIn := l.instrs[i+3]
	if forIn.Op != pybc.OpForIter {
		return 0, false, nil
	}
	storeIn := l.instrs[i+4]
	if storeIn.Op != pybc.OpStoreFast {
		return 0, false, l.errf(errorchannel.UnsupportedFeature, in, nil, "for-range loop variable must be a plain local store")
	}

	argc := callIn.Arg
	if argc < 1 || argc > 3 {
		return 0, false, l.errf(errorchannel.BadCall, in, nil, "range() takes 1 to 3 arguments, got %d", argc)
	}

	loopVar, err := l.fn.Code.ResolveVarname(storeIn)
	if err != nil {
		return 0, false, fmt.Errorf("frontend: %w", err)
	}

	mIdx := l.indexAtOffset(forIn.Arg)
	backIdx := mIdx - 1
	bodyStart := i + 5
	if backIdx < bodyStart || backIdx >= end {
		return 0, false, l.errf(errorchannel.UnsupportedFeature, in, nil, "malformed for-range loop")
	}
	back := l.instrs[backIdx]
	if !isUnconditionalJump(back.Op) || back.Arg != forIn.Offset {
		return 0, false, l.errf(errorchannel.UnsupportedFeature, in, nil, "malformed for-range loop: missing back-edge to the iterator test")
	}

	stepName, stopName, startName := l.newTemp(), l.newTemp(), l.newTemp()
	switch argc {
	case 3:
		stepArg := l.instrs[i-1]
		step, ok := constIntArg(l.fn.Code, stepArg)
		if !ok || step <= 0 {
			return 0, false, l.errf(errorchannel.UnsupportedFeature, in, nil, "range() step must be a compile-time positive integer constant")
		}
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stepName})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stopName})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: startName})
	case 2:
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stopName})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: startName})
		l.emit(sbc.OpLoadConstant, sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 1}})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stepName})
	default: // 1
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stopName})
		l.emit(sbc.OpLoadConstant, sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 0}})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: startName})
		l.emit(sbc.OpLoadConstant, sbc.Operand{Const: sbc.Const{Kind: sbc.ConstInt, Int: 1}})
		l.emit(sbc.OpStoreName, sbc.Operand{Str: stepName})
	}

	l.locals[loopVar] = true
	l.emit(sbc.OpLoadName, sbc.Operand{Str: startName})
	l.emit(sbc.OpStoreName, sbc.Operand{Str: loopVar})

	mergeLbl := l.newLabel()
	contLbl := l.newLabel()
	l.emit(sbc.OpLoopMerge, sbc.Operand{Label: mergeLbl, Label2: contLbl})

	l.loops = append(l.loops, loopFrame{continueOffset: forIn.Offset, mergeOffset: forIn.Arg})

	afterCheck := l.newLabel()
	falseLbl := l.newLabel()
	l.emit(sbc.OpLoadName, sbc.Operand{Str: loopVar})
	l.emit(sbc.OpLoadName, sbc.Operand{Str: stopName})
	l.emit(sbc.OpCompare, sbc.Operand{Compare: sbc.CmpLess})
	l.emit(sbc.OpSelectMerge, sbc.Operand{Label: afterCheck})
	l.emit(sbc.OpBranchConditional, sbc.Operand{Label: falseLbl})
	l.emit(sbc.OpBranch, sbc.Operand{Label: afterCheck})
	l.emit(sbc.OpLabel, sbc.Operand{Label: falseLbl})
	l.emit(sbc.OpBreak, sbc.Operand{})
	l.emit(sbc.OpLabel, sbc.Operand{Label: afterCheck})

	if err := l.lowerRange(bodyStart, backIdx); err != nil {
		return 0, false, err
	}
	l.emit(sbc.OpLabel, sbc.Operand{Label: contLbl})
	l.emit(sbc.OpLoadName, sbc.Operand{Str: loopVar})
	l.emit(sbc.OpLoadName, sbc.Operand{Str: stepName})
	l.emit(sbc.OpBinop, sbc.Operand{Bin: sbc.BinAdd})
	l.emit(sbc.OpStoreName, sbc.Operand{Str: loopVar})

	l.loops = l.loops[:len(l.loops)-1]
	l.emit(sbc.OpLabel, sbc.Operand{Label: mergeLbl})
	return mIdx - i, true, nil
}

// constIntArg reports whether in is a LOAD_CONST of an integer value,
// returning it. Used only to validate range()'s step argument, which
// spec requires to be a compile-time positive integer constant.
func constIntArg(code pybc.Function, in pybc.Instruction) (int, bool) {
	if in.Op != pybc.OpLoadConst {
		return 0, false
	}
	c, err := code.ResolveConst(in)
	if err != nil {
		return 0, false
	}
	switch n := c.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
