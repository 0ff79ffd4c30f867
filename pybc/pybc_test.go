package pybc

import "testing"

func TestDecodeFoldsExtendedArg(t *testing.T) {
	fn := Function{
		Raw: []RawInstruction{
			{Op: OpExtendedArg, Arg: 1, Offset: 0},
			{Op: OpLoadConst, Arg: 44, Offset: 2},
			{Op: OpReturnValue, Arg: 0, Offset: 4},
		},
		LineTable: map[int]int{0: 10},
	}
	instrs, err := Decode(fn)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(instrs) != 2 {
		t.Fatalf("len(instrs) = %d, want 2", len(instrs))
	}
	want := 1<<8 | 44
	if instrs[0].Op != OpLoadConst || instrs[0].Arg != want {
		t.Fatalf("instrs[0] = %+v, want Op=LOAD_CONST Arg=%d", instrs[0], want)
	}
	if instrs[0].Line != 10 {
		t.Fatalf("instrs[0].Line = %d, want 10", instrs[0].Line)
	}
	if instrs[1].Line != 10 {
		t.Fatalf("instrs[1].Line = %d, want 10 (carried forward)", instrs[1].Line)
	}
}

func TestResolveConstOutOfRange(t *testing.T) {
	fn := Function{Consts: []interface{}{1.0}}
	if _, err := fn.ResolveConst(Instruction{Arg: 5}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestDetectTuplePack(t *testing.T) {
	instrs := []Instruction{
		{Op: OpLoadConst, Arg: 0},
		{Op: OpLoadConst, Arg: 1},
		{Op: OpBuildTuple, Arg: 2},
		{Op: OpUnpackSequence, Arg: 2},
		{Op: OpStoreFast, Arg: 0},
		{Op: OpStoreFast, Arg: 1},
	}
	pack, ok := DetectTuplePack(instrs, 2)
	if !ok {
		t.Fatal("expected tuple pack window at index 2")
	}
	if pack.Size != 2 || !pack.HasExplicitBuild {
		t.Fatalf("pack = %+v, want Size=2 HasExplicitBuild=true", pack)
	}
}

func TestDetectTuplePackRejectsMismatchedSize(t *testing.T) {
	instrs := []Instruction{
		{Op: OpBuildTuple, Arg: 3},
		{Op: OpUnpackSequence, Arg: 2},
	}
	if _, ok := DetectTuplePack(instrs, 0); ok {
		t.Fatal("expected rejection of mismatched build/unpack sizes")
	}
}

func TestRotatePermutation(t *testing.T) {
	cases := map[int][]int{
		2: {1, 0},
		3: {2, 1, 0},
		4: {3, 2, 1, 0},
	}
	for depth, want := range cases {
		got, ok := RotatePermutation(depth)
		if !ok {
			t.Fatalf("RotatePermutation(%d) not ok", depth)
		}
		if len(got) != len(want) {
			t.Fatalf("RotatePermutation(%d) = %v, want %v", depth, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("RotatePermutation(%d) = %v, want %v", depth, got, want)
			}
		}
	}
	if _, ok := RotatePermutation(5); ok {
		t.Fatal("RotatePermutation(5) should be unsupported")
	}
}
