package backend

import (
	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/frontend"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/sbc"
)

// call dispatches co_call/co_call_builtin: a stdlib math function, a
// texture/sampler intrinsic method, or a type-constructor composite
// literal. The Front-end Lowerer already validated the callee name via
// its own copy of this same three-way check (isCallableGlobal), so
// falling through all three here means the two stages have drifted —
// reported as an internal error rather than a user-facing BadCall.
func (g *generator) call(c sbc.Call) error {
	if fn, ok := frontend.MathFunctionFor(c.Name); ok {
		return g.mathCall(fn, c.Argc)
	}
	if frontend.IsTextureMethod(c.Name) {
		return g.textureCall(c)
	}
	if _, err := ir.ParseType(c.Name); err == nil {
		return g.composeCall(c)
	}
	return g.errf(errorchannel.Internal, []string{c.Name}, "co_call_builtin %q resolved to nothing the backend recognizes", c.Name)
}

// mathReducers is the set of math functions whose result is the scalar
// component type of their first argument rather than that argument's
// own (possibly vector) type.
var mathReducers = map[ir.MathFunction]bool{
	ir.MathLength: true, ir.MathDistance: true, ir.MathDot: true,
	ir.MathDot4I8Packed: true, ir.MathDot4U8Packed: true,
}

func (g *generator) mathCall(fn ir.MathFunction, argc int) error {
	args := g.popN(argc)
	for _, a := range args {
		if a.none {
			return g.errf(errorchannel.Internal, nil, "math call argument cannot be the None sentinel")
		}
	}
	expr := ir.ExprMath{Fun: fn, Arg: args[0].handle}
	if len(args) > 1 {
		h := args[1].handle
		expr.Arg1 = &h
	}
	if len(args) > 2 {
		h := args[2].handle
		expr.Arg2 = &h
	}
	if len(args) > 3 {
		h := args[3].handle
		expr.Arg3 = &h
	}

	resType := g.exprTypes[args[0].handle]
	if mathReducers[fn] {
		if v, ok := resType.(ir.VectorType); ok {
			resType = v.Scalar
		}
	}
	h := g.addExpr(expr, resType)
	g.push(stackVal{handle: h})
	return nil
}

// composeCall builds a type-constructor call (e.g. "vec3(a, b, c)") into
// an ExprCompose; it is reached for any callee name ir.ParseType
// accepts, which is also the frontend's test for a constructor name.
func (g *generator) composeCall(c sbc.Call) error {
	t, err := g.internTypeSpec(c.Name)
	if err != nil {
		return err
	}
	args := g.popN(c.Argc)
	comps := make([]ir.ExpressionHandle, len(args))
	for i, a := range args {
		if a.none {
			return g.errf(errorchannel.Internal, nil, "compose argument cannot be the None sentinel")
		}
		comps[i] = a.handle
	}
	h := g.addExpr(ir.ExprCompose{Type: g.internTypeInner(t), Components: comps}, t)
	g.push(stackVal{handle: h})
	return nil
}

// textureCall handles a co_call_builtin whose callee is a texture or
// sampler intrinsic method (sample, read/load, write, dimensions). Unlike a stdlib
// or compose call, the receiving object is not folded into the callee
// name: LOAD_METHOD leaves the preceding LOAD_FAST's push on the stack
// (see frontend.lowerSimple's OpLoadMethod case), so the image value
// sits just below the Argc real arguments rather than being looked up
// by name.
func (g *generator) textureCall(c sbc.Call) error {
	args := g.popN(c.Argc)
	for _, a := range args {
		if a.none {
			return g.errf(errorchannel.Internal, nil, "texture method argument cannot be the None sentinel")
		}
	}
	self := g.pop()
	if self.none {
		return g.errf(errorchannel.Internal, nil, "texture method receiver cannot be the None sentinel")
	}
	imgType, ok := g.exprTypes[self.handle].(ir.ImageType)
	if !ok {
		return g.errf(errorchannel.TypeMismatch, []string{c.Name}, "%q called on a non-texture value", c.Name)
	}
	img := self.handle

	method := frontend.BareName(c.Name)
	switch method {
	case "sample":
		if len(args) != 2 {
			return g.errf(errorchannel.BadCall, []string{c.Name}, "sample() takes (sampler, coordinate), got %d arguments", len(args))
		}
		h := g.addExpr(ir.ExprImageSample{
			Image:      img,
			Sampler:    args[0].handle,
			Coordinate: args[1].handle,
			Level:      ir.SampleLevelAuto{},
		}, vec4F32())
		g.push(stackVal{handle: h})
		return nil
	case "read", "load":
		if len(args) != 1 {
			return g.errf(errorchannel.BadCall, []string{c.Name}, "read() takes (coordinate), got %d arguments", len(args))
		}
		h := g.addExpr(ir.ExprImageLoad{Image: img, Coordinate: args[0].handle}, vec4F32())
		g.push(stackVal{handle: h})
		return nil
	case "write":
		if len(args) != 2 {
			return g.errf(errorchannel.BadCall, []string{c.Name}, "write() takes (coordinate, value), got %d arguments", len(args))
		}
		g.append(ir.StmtImageStore{Image: img, Coordinate: args[0].handle, Value: args[1].handle})
		// write() has no return value; co_pop_top still follows every
		// statement-level call, so push the None sentinel to balance it.
		g.push(stackVal{none: true})
		return nil
	case "dimensions":
		if len(args) != 0 {
			return g.errf(errorchannel.BadCall, []string{c.Name}, "dimensions() takes no arguments, got %d", len(args))
		}
		h := g.addExpr(ir.ExprImageQuery{Image: img, Query: ir.ImageQuerySize{}}, dimensionsResultType(imgType.Dim))
		g.push(stackVal{handle: h})
		return nil
	default:
		return g.errf(errorchannel.UnsupportedFeature, []string{method}, "unsupported texture method %q", method)
	}
}

func vec4F32() ir.TypeInner {
	return ir.VectorType{Size: ir.Vec4, Scalar: ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}}
}

func dimensionsResultType(dim ir.ImageDimension) ir.TypeInner {
	u32 := ir.ScalarType{Kind: ir.ScalarUint, Width: 4}
	switch dim {
	case ir.Dim1D:
		return u32
	case ir.Dim3D:
		return ir.VectorType{Size: ir.Vec3, Scalar: u32}
	default: // Dim2D, DimCube
		return ir.VectorType{Size: ir.Vec2, Scalar: u32}
	}
}
