package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/shaderbc/errorchannel"
)

// ParseType parses a canonical type spec string into a TypeInner.
//
// Accepted forms: scalar names ("bool", "i8".."i64", "u8".."u64",
// "f16", "f32", "f64"), vector names ("vec2", "vec3", "vec4" default to
// f32 components; "ivec3", "uvec4", "bvec2" select scalar kind),
// "Array(<elem>)" and "Array(<elem>,<n>)", and image forms whose
// second field is a scalar name or a format tag ("2d f32", "3d r16i",
// "2d rg32i", "cube f32").
func ParseType(spec string) (TypeInner, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, fmt.Errorf("ir: empty type spec")
	}

	if scalar, ok := scalarByName[s]; ok {
		return scalar, nil
	}

	if vec, ok := parseVectorName(s); ok {
		return vec, nil
	}

	if strings.HasPrefix(s, "Array(") && strings.HasSuffix(s, ")") {
		return parseArraySpec(s)
	}

	if img, ok, err := parseImageSpec(s); ok || err != nil {
		return img, err
	}

	return nil, fmt.Errorf("ir: unrecognized type spec %q", s)
}

var scalarByName = map[string]ScalarType{
	"bool": {Kind: ScalarBool, Width: 1},
	"i8":   {Kind: ScalarSint, Width: 1},
	"i16":  {Kind: ScalarSint, Width: 2},
	"i32":  {Kind: ScalarSint, Width: 4},
	"i64":  {Kind: ScalarSint, Width: 8},
	"u8":   {Kind: ScalarUint, Width: 1},
	"u16":  {Kind: ScalarUint, Width: 2},
	"u32":  {Kind: ScalarUint, Width: 4},
	"u64":  {Kind: ScalarUint, Width: 8},
	"f16":  {Kind: ScalarFloat, Width: 2},
	"f32":  {Kind: ScalarFloat, Width: 4},
	"f64":  {Kind: ScalarFloat, Width: 8},
}

var vectorPrefixScalar = map[string]ScalarType{
	"vec":  {Kind: ScalarFloat, Width: 4},
	"ivec": {Kind: ScalarSint, Width: 4},
	"uvec": {Kind: ScalarUint, Width: 4},
	"bvec": {Kind: ScalarBool, Width: 1},
	"dvec": {Kind: ScalarFloat, Width: 8},
}

func parseVectorName(s string) (VectorType, bool) {
	for prefix, scalar := range vectorPrefixScalar {
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		rest := s[len(prefix):]
		n, err := strconv.Atoi(rest)
		if err != nil || (n != 2 && n != 3 && n != 4) {
			continue
		}
		return VectorType{Size: VectorSize(n), Scalar: scalar}, true
	}
	return VectorType{}, false
}

func parseArraySpec(s string) (TypeInner, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "Array("), ")")
	parts := strings.SplitN(inner, ",", 2)
	elemSpec := strings.TrimSpace(parts[0])
	elemType, err := ParseType(elemSpec)
	if err != nil {
		return nil, fmt.Errorf("ir: array element %q: %w", elemSpec, err)
	}
	_ = elemType // caller re-interns via a TypeRegistry to obtain a TypeHandle

	size := ArraySize{}
	if len(parts) == 2 {
		n, convErr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if convErr != nil {
			return nil, fmt.Errorf("ir: array length %q: %w", parts[1], convErr)
		}
		u := uint32(n)
		size.Constant = &u
	}

	// ArrayType.Base is a handle, resolved by the caller via a
	// TypeRegistry; ParseType alone cannot allocate handles, so this
	// returns the element type for the caller to intern and wire in.
	return arraySpecResult{Elem: elemType, Size: size}, nil
}

// arraySpecResult is an intermediate result for "Array(...)" specs: the
// caller must intern Elem via a TypeRegistry to obtain the TypeHandle
// that a real ArrayType requires.
type arraySpecResult struct {
	Elem TypeInner
	Size ArraySize
}

func (arraySpecResult) typeInner() {}

// ResolveArraySpec unwraps the intermediate value ParseType returns for
// an "Array(...)" spec, so a caller outside this package can intern Elem
// via its own TypeRegistry and build the real ArrayType. ok is false for
// any TypeInner that did not come from an "Array(...)" spec.
func ResolveArraySpec(inner TypeInner) (elem TypeInner, size ArraySize, ok bool) {
	a, ok := inner.(arraySpecResult)
	if !ok {
		return nil, ArraySize{}, false
	}
	return a.Elem, a.Size, true
}

var imageDimNames = map[string]ImageDimension{
	"1d":   Dim1D,
	"2d":   Dim2D,
	"3d":   Dim3D,
	"cube": DimCube,
}

func parseImageSpec(s string) (TypeInner, bool, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, false, nil
	}
	dim, ok := imageDimNames[fields[0]]
	if !ok {
		return nil, false, nil
	}
	// A format tag ("r16i", "rg32i", "rgba8") is channels, bit count and
	// an optional i/u/f suffix.
	digits := strings.TrimRight(strings.TrimLeft(fields[1], "rgba"), "iuf")
	if _, convErr := strconv.Atoi(digits); convErr == nil && strings.HasPrefix(fields[1], "r") {
		return ImageType{Dim: dim, Class: ImageClassSampled}, true, nil
	}
	sampled, err := ParseType(fields[1])
	if err != nil {
		return nil, true, fmt.Errorf("ir: image sampled type %q: %w", fields[1], err)
	}
	scalar, ok := sampled.(ScalarType)
	if !ok {
		return nil, true, fmt.Errorf("ir: image sampled type must be scalar, got %T", sampled)
	}
	_ = scalar
	return ImageType{Dim: dim, Class: ImageClassSampled}, true, nil
}

// Canonical returns the interning key for a TypeInner, matching the key
// format TypeRegistry.GetOrCreate uses internally, so external callers
// (the opcode registry pretty-printer, diagnostics) get a stable form
// without depending on registry internals.
func Canonical(inner TypeInner) string {
	r := NewTypeRegistry()
	return r.normalizeType(inner)
}

// numericRank orders scalar kinds for promotion: bool < signed/unsigned
// int < float. Within a rank class, width breaks ties.
func numericRank(k ScalarKind) int {
	switch k {
	case ScalarBool:
		return 0
	case ScalarSint, ScalarUint:
		return 1
	case ScalarFloat:
		return 2
	default:
		return -1
	}
}

// Promote computes the numeric promotion of two scalar or vector types
// for use as operands of a binary arithmetic expression.
//
// Rules (spec §4.1): bool -> int -> float in rank; equal-rank float
// wins over int; mixing int and float in the same expression is
// forbidden and must be cast explicitly first.
func Promote(a, b TypeInner) (TypeInner, error) {
	as, aIsScalar := a.(ScalarType)
	bs, bIsScalar := b.(ScalarType)
	if aIsScalar && bIsScalar {
		return promoteScalar(as, bs)
	}

	av, aIsVec := a.(VectorType)
	bv, bIsVec := b.(VectorType)
	if aIsVec && bIsVec {
		if av.Size != bv.Size {
			return nil, typeMismatch("vector size mismatch: vec%d vs vec%d", av.Size, bv.Size)
		}
		scalar, err := promoteScalar(av.Scalar, bv.Scalar)
		if err != nil {
			return nil, err
		}
		return VectorType{Size: av.Size, Scalar: scalar.(ScalarType)}, nil
	}
	if aIsVec && bIsScalar {
		scalar, err := promoteScalar(av.Scalar, bs)
		if err != nil {
			return nil, err
		}
		return VectorType{Size: av.Size, Scalar: scalar.(ScalarType)}, nil
	}
	if bIsVec && aIsScalar {
		scalar, err := promoteScalar(bv.Scalar, as)
		if err != nil {
			return nil, err
		}
		return VectorType{Size: bv.Size, Scalar: scalar.(ScalarType)}, nil
	}

	return nil, typeMismatch("incompatible operand types %T and %T", a, b)
}

func promoteScalar(a, b ScalarType) (TypeInner, error) {
	if a.Kind == b.Kind {
		if a.Width >= b.Width {
			return a, nil
		}
		return b, nil
	}

	rankA, rankB := numericRank(a.Kind), numericRank(b.Kind)

	// int <-> float mixing is always an explicit-cast requirement.
	if (a.Kind == ScalarFloat) != (b.Kind == ScalarFloat) && rankA >= 1 && rankB >= 1 {
		return nil, typeMismatch("implicit int/float mix between %s and %s requires an explicit cast",
			scalarName(a), scalarName(b))
	}

	if rankA != rankB {
		if rankA > rankB {
			return a, nil
		}
		return b, nil
	}

	// Same rank, different kind (e.g. Sint vs Uint): prefer the wider,
	// and on a tie prefer signed since it can represent every unsigned
	// value the same width cannot.
	if a.Width != b.Width {
		if a.Width > b.Width {
			return a, nil
		}
		return b, nil
	}
	if a.Kind == ScalarSint {
		return a, nil
	}
	return b, nil
}

func scalarName(s ScalarType) string {
	switch s.Kind {
	case ScalarBool:
		return "bool"
	case ScalarSint:
		return fmt.Sprintf("i%d", s.Width*8)
	case ScalarUint:
		return fmt.Sprintf("u%d", s.Width*8)
	case ScalarFloat:
		return fmt.Sprintf("f%d", s.Width*8)
	default:
		return "unknown"
	}
}

func typeMismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s", errorchannel.TypeMismatch, fmt.Sprintf(format, args...))
}

// CastKind distinguishes the SPIR-V conversion family a cast requires.
type CastKind uint8

const (
	// CastConvert is a numeric conversion (OpConvertSToF, OpConvertFToU, ...).
	CastConvert CastKind = iota
	// CastBitcast reinterprets the same bit pattern (OpBitcast); only
	// valid between types of equal total width.
	CastBitcast
	// CastElementwise applies a scalar cast independently to each vector
	// component (vector <-> vector of equal size, differing scalar kind).
	CastElementwise
	// CastIdentity means no instruction is required.
	CastIdentity
)

// CastRule describes how to convert a value of type From to type To.
type CastRule struct {
	Kind CastKind
	From TypeInner
	To   TypeInner
}

// Cast derives the conversion rule for an explicit cast from 'from' to
// 'to'. Identical types need no instruction; vector-to-vector casts of
// equal size map elementwise. A scalar cast between two non-float kinds
// of equal width (e.g. i32 <-> u32) is a bitcast; every other scalar
// cast, including a width change within one kind, is a numeric
// conversion.
func Cast(from, to TypeInner) (CastRule, error) {
	if Canonical(from) == Canonical(to) {
		return CastRule{Kind: CastIdentity, From: from, To: to}, nil
	}

	fs, fIsScalar := from.(ScalarType)
	ts, tIsScalar := to.(ScalarType)
	if fIsScalar && tIsScalar {
		if fs.Kind == ts.Kind {
			return CastRule{Kind: CastConvert, From: from, To: to}, nil
		}
		if fs.Kind != ScalarFloat && ts.Kind != ScalarFloat && fs.Width == ts.Width {
			return CastRule{Kind: CastBitcast, From: from, To: to}, nil
		}
		return CastRule{Kind: CastConvert, From: from, To: to}, nil
	}

	fv, fIsVec := from.(VectorType)
	tv, tIsVec := to.(VectorType)
	if fIsVec && tIsVec {
		if fv.Size != tv.Size {
			return CastRule{}, fmt.Errorf("%s: cannot cast vec%d to vec%d", errorchannel.TypeMismatch, fv.Size, tv.Size)
		}
		return CastRule{Kind: CastElementwise, From: from, To: to}, nil
	}

	return CastRule{}, fmt.Errorf("%s: unsupported cast from %T to %T", errorchannel.TypeMismatch, from, to)
}
