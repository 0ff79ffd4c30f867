package backend

import (
	"github.com/gogpu/shaderbc/errorchannel"
	"github.com/gogpu/shaderbc/frontend"
	"github.com/gogpu/shaderbc/ir"
	"github.com/gogpu/shaderbc/sbc"
)

// builtinTable maps a co_resource builtin name to the ir.BuiltinValue it
// binds, copied from the teacher's WGSL lowerer (wgsl/lower.go) since
// Shader ByteCode reuses the same builtin vocabulary verbatim.
var builtinTable = map[string]ir.BuiltinValue{
	"position":               ir.BuiltinPosition,
	"vertex_index":           ir.BuiltinVertexIndex,
	"instance_index":         ir.BuiltinInstanceIndex,
	"front_facing":           ir.BuiltinFrontFacing,
	"frag_depth":             ir.BuiltinFragDepth,
	"sample_index":           ir.BuiltinSampleIndex,
	"sample_mask":            ir.BuiltinSampleMask,
	"local_invocation_id":    ir.BuiltinLocalInvocationID,
	"local_invocation_index": ir.BuiltinLocalInvocationIndex,
	"global_invocation_id":   ir.BuiltinGlobalInvocationID,
	"workgroup_id":           ir.BuiltinWorkGroupID,
	"num_workgroups":         ir.BuiltinNumWorkGroups,
}

// addResource wires one co_resource operand into the function signature
// (Input/Output) or the module's global variable list (buffer, uniform,
// texture, sampler), per SPEC_FULL.md's resource binding rules.
func (g *generator) addResource(r sbc.Resource) error {
	switch r.IOKind {
	case frontend.IOInput.String():
		return g.addInput(r)
	case frontend.IOOutput.String():
		return g.addOutput(r)
	case frontend.IOBuffer.String():
		return g.addGlobal(r, ir.SpaceStorage)
	case frontend.IOUniform.String():
		return g.addGlobal(r, ir.SpaceUniform)
	case frontend.IOTexture.String(), frontend.IOSampler.String():
		return g.addGlobal(r, ir.SpaceHandle)
	default:
		return g.errf(errorchannel.Internal, []string{r.Name}, "unknown resource iokind %q", r.IOKind)
	}
}

func (g *generator) addInput(r sbc.Resource) error {
	t, err := g.internTypeSpec(r.TypeSpec)
	if err != nil {
		return err
	}
	arg := ir.FunctionArgument{Name: r.Name, Type: g.internTypeInner(t)}
	if binding, err := g.bindingFor(r); err != nil {
		return err
	} else if binding != nil {
		arg.Binding = &binding
	}
	idx := uint32(len(g.fn.Arguments))
	g.fn.Arguments = append(g.fn.Arguments, arg)
	g.argTypes = append(g.argTypes, t)
	g.args[r.Name] = idx
	return nil
}

// addOutput records the function's result type and binding. Only one
// Output resource is supported: the result value itself always flows
// from the function's explicit co_return, never from a declared local,
// so a second Output resource would have nowhere to draw its value from.
func (g *generator) addOutput(r sbc.Resource) error {
	if g.fn.Result != nil {
		return g.errf(errorchannel.UnsupportedFeature, []string{r.Name},
			"multiple Output resources are not supported; a function has exactly one return value")
	}
	t, err := g.internTypeSpec(r.TypeSpec)
	if err != nil {
		return err
	}
	binding, err := g.bindingFor(r)
	if err != nil {
		return err
	}
	g.fn.Result = &ir.FunctionResult{Type: g.internTypeInner(t)}
	if binding != nil {
		g.fn.Result.Binding = &binding
	}
	return nil
}

func (g *generator) addGlobal(r sbc.Resource, space ir.AddressSpace) error {
	var t ir.TypeInner
	var err error
	switch r.IOKind {
	case frontend.IOTexture.String():
		t, err = textureTypeInner(r.TypeSpec)
	case frontend.IOSampler.String():
		t = ir.SamplerType{}
	default:
		t, err = g.internTypeSpec(r.TypeSpec)
	}
	if err != nil {
		return err
	}

	var binding *ir.ResourceBinding
	if r.Set != nil && r.Binding != nil {
		if err := g.checkBindingConflict(r); err != nil {
			return err
		}
		binding = &ir.ResourceBinding{Group: uint32(*r.Set), Binding: uint32(*r.Binding)}
	}

	gv := ir.GlobalVariable{Name: r.Name, Space: space, Binding: binding, Type: g.internTypeInner(t)}
	gh := ir.GlobalVariableHandle(len(g.globalVars))
	g.globalVars = append(g.globalVars, gv)
	g.globalVarTypes = append(g.globalVarTypes, t)
	g.globals[r.Name] = gh
	return nil
}

func (g *generator) checkBindingConflict(r sbc.Resource) error {
	key := [2]int{*r.Set, *r.Binding}
	if owner, exists := g.bindings[key]; exists {
		return errorchannel.Newf(errorchannel.BindingConflict, g.filename, g.line, []string{owner, r.Name},
			"resource %q and %q both claim binding (set=%d, binding=%d)", owner, r.Name, *r.Set, *r.Binding)
	}
	g.bindings[key] = r.Name
	return nil
}

func (g *generator) bindingFor(r sbc.Resource) (ir.Binding, error) {
	switch {
	case r.Builtin != "":
		b, ok := builtinTable[r.Builtin]
		if !ok {
			return nil, g.errf(errorchannel.UnsupportedFeature, []string{r.Builtin}, "unknown builtin %q", r.Builtin)
		}
		return ir.BuiltinBinding{Builtin: b}, nil
	case r.Location != nil:
		return ir.LocationBinding{Location: uint32(*r.Location)}, nil
	default:
		return nil, nil
	}
}

// textureTypeInner builds an ImageType from a resource TypeSpec of the
// form the Front-end Lowerer emits for texture parameters, e.g. "2d f32".
func textureTypeInner(spec string) (ir.TypeInner, error) {
	inner, err := ir.ParseType(spec)
	if err != nil {
		return nil, errorchannel.Newf(errorchannel.TypeMismatch, "", 0, []string{spec}, "%s", err)
	}
	if _, ok := inner.(ir.ImageType); !ok {
		return nil, errorchannel.Newf(errorchannel.TypeMismatch, "", 0, []string{spec}, "texture resource type %q is not an image spec", spec)
	}
	return inner, nil
}

// internTypeSpec parses a sbc type-spec string and interns every type it
// mentions, recursing through Array(...) specs to register the element
// type before building the real ArrayType (ir.ParseType alone cannot
// allocate a TypeHandle for the element).
func (g *generator) internTypeSpec(spec string) (ir.TypeInner, error) {
	inner, err := ir.ParseType(spec)
	if err != nil {
		return nil, errorchannel.Newf(errorchannel.TypeMismatch, g.filename, g.line, []string{spec}, "%s", err)
	}
	return g.resolveArraySpecs(inner), nil
}

// resolveArraySpecs rewrites any ir.ResolveArraySpec-unwrappable TypeInner
// (what ParseType returns for "Array(...)") into a real ir.ArrayType whose
// Base handle points at the interned element type.
func (g *generator) resolveArraySpecs(inner ir.TypeInner) ir.TypeInner {
	elem, size, ok := ir.ResolveArraySpec(inner)
	if !ok {
		return inner
	}
	elem = g.resolveArraySpecs(elem)
	elemHandle := g.internTypeInner(elem)
	stride := uint32(0)
	if s, isScalar := elem.(ir.ScalarType); isScalar {
		stride = uint32(s.Width)
	}
	return ir.ArrayType{Base: elemHandle, Size: size, Stride: stride}
}

func (g *generator) internTypeInner(inner ir.TypeInner) ir.TypeHandle {
	return g.types.GetOrCreate(ir.Canonical(inner), inner)
}
