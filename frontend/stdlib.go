package frontend

import "github.com/gogpu/shaderbc/ir"

// stdlibMath maps a stdlib.<name>(...) call to the reused ir.MathFunction
// table the teacher already built for WGSL's builtin functions — the
// compute side of this compiler never needed a second enum.
var stdlibMath = map[string]ir.MathFunction{
	"abs":         ir.MathAbs,
	"min":         ir.MathMin,
	"max":         ir.MathMax,
	"clamp":       ir.MathClamp,
	"saturate":    ir.MathSaturate,
	"cos":         ir.MathCos,
	"cosh":        ir.MathCosh,
	"sin":         ir.MathSin,
	"sinh":        ir.MathSinh,
	"tan":         ir.MathTan,
	"tanh":        ir.MathTanh,
	"acos":        ir.MathAcos,
	"asin":        ir.MathAsin,
	"atan":        ir.MathAtan,
	"atan2":       ir.MathAtan2,
	"asinh":       ir.MathAsinh,
	"acosh":       ir.MathAcosh,
	"atanh":       ir.MathAtanh,
	"radians":     ir.MathRadians,
	"degrees":     ir.MathDegrees,
	"ceil":        ir.MathCeil,
	"floor":       ir.MathFloor,
	"round":       ir.MathRound,
	"fract":       ir.MathFract,
	"trunc":       ir.MathTrunc,
	"modf":        ir.MathModf,
	"frexp":       ir.MathFrexp,
	"ldexp":       ir.MathLdexp,
	"exp":         ir.MathExp,
	"exp2":        ir.MathExp2,
	"log":         ir.MathLog,
	"log2":        ir.MathLog2,
	"pow":         ir.MathPow,
	"dot":         ir.MathDot,
	"outer":       ir.MathOuter,
	"cross":       ir.MathCross,
	"distance":    ir.MathDistance,
	"length":      ir.MathLength,
	"normalize":   ir.MathNormalize,
	"faceforward": ir.MathFaceForward,
	"reflect":     ir.MathReflect,
	"refract":     ir.MathRefract,
	"sign":        ir.MathSign,
	"fma":         ir.MathFma,
	"mix":         ir.MathMix,
	"step":        ir.MathStep,
	"smoothstep":  ir.MathSmoothStep,
}

// isStdlibCall reports whether a dotted call name resolves against the
// stdlib namespace (e.g. "stdlib.sin", or a bare builtin name used
// unqualified). A call name that is not found here, is not one of the
// texture methods and does not parse as a type constructor is rejected
// by lowerCall as an errorchannel.BadCall (see isCallableGlobal).
func isStdlibCall(name string) bool {
	_, ok := stdlibMath[stdlibName(name)]
	return ok
}

// MathFunctionFor resolves a dotted or bare stdlib call name to the
// ir.MathFunction it lowers to. The backend package uses this instead
// of re-deriving the mapping so the two stages never drift apart.
func MathFunctionFor(name string) (ir.MathFunction, bool) {
	fn, ok := stdlibMath[stdlibName(name)]
	return fn, ok
}

// IsTextureMethod reports whether name (after stripping any dotted
// prefix) is one of the texture/sampler intrinsic methods the backend
// turns into an image expression, keeping the method set defined in
// exactly one place.
func IsTextureMethod(name string) bool { return isTextureMethod(stdlibName(name)) }

// BareName strips a call name's dotted prefix, e.g. "tex.sample" -> "sample".
func BareName(name string) string { return stdlibName(name) }

func stdlibName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
