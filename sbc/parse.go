package sbc

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse is the exact inverse of Print: it decodes the line-oriented
// textual form back into a Program. Line numbers are not recoverable
// from the text alone (Print does not emit them per-instruction — they
// live in co_src_linenr markers, same as the textual form this mirrors)
// so Parse derives each Instruction.Line from the most recent
// co_src_linenr seen, exactly as a consumer reading the stream would.
func Parse(text string) (Program, error) {
	var p Program
	line := 0
	for i, raw := range strings.Split(text, "\n") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		instr, err := parseLine(s, line)
		if err != nil {
			return Program{}, fmt.Errorf("sbc: line %d: %w", i+1, err)
		}
		if instr.Op == OpSrcLineNr {
			line = int(instr.Operand.Int)
		}
		instr.Line = line
		p.Instructions = append(p.Instructions, instr)
	}
	return p, nil
}

func parseLine(s string, line int) (Instruction, error) {
	fields := strings.SplitN(s, " ", 2)
	mnemonic := fields[0]
	op, ok := ParseOpcode(mnemonic)
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %q", mnemonic)
	}
	desc := Descriptors[op]
	var arg string
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}

	instr := Instruction{Op: op, Line: line}
	switch desc.Operand {
	case OperandNone:
		if arg != "" {
			return Instruction{}, fmt.Errorf("%s takes no operand, got %q", op, arg)
		}
	case OperandString, OperandName:
		instr.Operand.Str = arg
	case OperandInt, OperandRotateDepth:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: invalid integer operand %q: %w", op, arg, err)
		}
		instr.Operand.Int = n
	case OperandFloat:
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: invalid float operand %q: %w", op, arg, err)
		}
		instr.Operand.Float = f
	case OperandLabel:
		label, err := parseLabel(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		instr.Operand.Label = label
	case OperandCompareOp:
		cmp, ok := compareOpByName[arg]
		if !ok {
			return Instruction{}, fmt.Errorf("%s: unknown compare operand %q", op, arg)
		}
		instr.Operand.Compare = cmp
	case OperandBinOp:
		bin, ok := binOpByName[arg]
		if !ok {
			return Instruction{}, fmt.Errorf("%s: unknown binop operand %q", op, arg)
		}
		instr.Operand.Bin = bin
	case OperandUnOp:
		un, ok := unOpByName[arg]
		if !ok {
			return Instruction{}, fmt.Errorf("%s: unknown unop operand %q", op, arg)
		}
		instr.Operand.Un = un
	case OperandConst:
		c, err := parseConst(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		instr.Operand.Const = c
	case OperandResource:
		r, err := parseResource(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		instr.Operand.Resource = r
	case OperandCall:
		c, err := parseCall(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		instr.Operand.Call = c
	case OperandLabelPair:
		merge, cont, err := parseLabelPair(arg)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s: %w", op, err)
		}
		instr.Operand.Label = merge
		instr.Operand.Label2 = cont
	}
	return instr, nil
}

func parseLabel(s string) (int, error) {
	if !strings.HasPrefix(s, "L") {
		return 0, fmt.Errorf("label operand %q missing L prefix", s)
	}
	return strconv.Atoi(s[1:])
}

func parseLabelPair(s string) (merge int, cont int, err error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed label pair %q", s)
	}
	merge, err = parseLabel(parts[0])
	if err != nil {
		return 0, 0, err
	}
	cont, err = parseLabel(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return merge, cont, nil
}

func parseCall(s string) (Call, error) {
	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return Call{}, fmt.Errorf("malformed call operand %q", s)
	}
	name := s[:idx]
	argc, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Call{}, fmt.Errorf("invalid call argc %q: %w", s[idx+1:], err)
	}
	return Call{Name: name, Argc: argc}, nil
}

func parseResource(s string) (Resource, error) {
	fields := strings.SplitN(s, " ", 4)
	if len(fields) < 3 {
		return Resource{}, fmt.Errorf("malformed resource operand %q", s)
	}
	r := Resource{Name: fields[0], IOKind: fields[1]}
	if len(fields) == 4 {
		r.TypeSpec = fields[3]
	}
	slot := fields[2]
	switch {
	case strings.HasPrefix(slot, "builtin:"):
		r.Builtin = strings.TrimPrefix(slot, "builtin:")
	case strings.HasPrefix(slot, "loc:"):
		n, err := strconv.Atoi(strings.TrimPrefix(slot, "loc:"))
		if err != nil {
			return Resource{}, fmt.Errorf("invalid location slot %q: %w", slot, err)
		}
		r.Location = &n
	case strings.HasPrefix(slot, "bind:"):
		parts := strings.SplitN(strings.TrimPrefix(slot, "bind:"), ",", 2)
		if len(parts) != 2 {
			return Resource{}, fmt.Errorf("invalid binding slot %q", slot)
		}
		set, err := strconv.Atoi(parts[0])
		if err != nil {
			return Resource{}, fmt.Errorf("invalid set in slot %q: %w", slot, err)
		}
		binding, err := strconv.Atoi(parts[1])
		if err != nil {
			return Resource{}, fmt.Errorf("invalid binding in slot %q: %w", slot, err)
		}
		r.Set = &set
		r.Binding = &binding
	case slot == "none":
		// no slot
	default:
		return Resource{}, fmt.Errorf("unknown slot form %q", slot)
	}
	return r, nil
}

func parseConst(s string) (Const, error) {
	if s == "none" {
		return Const{Kind: ConstNone}, nil
	}
	fields := strings.SplitN(s, " ", 2)
	if len(fields) != 2 {
		return Const{}, fmt.Errorf("malformed const operand %q", s)
	}
	switch fields[0] {
	case "int":
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Const{}, fmt.Errorf("invalid int const %q: %w", fields[1], err)
		}
		return Const{Kind: ConstInt, Int: n}, nil
	case "float":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Const{}, fmt.Errorf("invalid float const %q: %w", fields[1], err)
		}
		return Const{Kind: ConstFloat, Float: f}, nil
	case "bool":
		b, err := strconv.ParseBool(fields[1])
		if err != nil {
			return Const{}, fmt.Errorf("invalid bool const %q: %w", fields[1], err)
		}
		return Const{Kind: ConstBool, Bool: b}, nil
	default:
		return Const{}, fmt.Errorf("unknown const kind %q", fields[0])
	}
}
