package ir

import (
	"fmt"
	"strings"
)

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// String returns a textual listing of the function.
func (f *Function) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("function %%%s%s {\n", f.Name, f.Sig))
	for i, ext := range f.ExtFuncs {
		sb.WriteString(fmt.Sprintf("    %s = %%%s%s\n", FuncRef(i), ext.Name, ext.Sig))
	}
	if len(f.ExtFuncs) > 0 {
		sb.WriteString("\n")
	}

	for i, blk := range f.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(Block(i).String())
		if len(blk.Params) > 0 {
			params := make([]string, len(blk.Params))
			for j, p := range blk.Params {
				params[j] = fmt.Sprintf("%s: %s", p, f.ValueTypes[p])
			}
			sb.WriteString("(" + strings.Join(params, ", ") + ")")
		}
		sb.WriteString(":\n")
		for j := range blk.Insts {
			sb.WriteString("    ")
			sb.WriteString(f.formatInst(&blk.Insts[j]))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func formatBlockCall(bc BlockCall) string {
	if len(bc.Args) == 0 {
		return bc.Block.String()
	}
	return fmt.Sprintf("%s(%s)", bc.Block, joinValues(bc.Args))
}

func (f *Function) formatInst(inst *Inst) string {
	var lhs string
	if inst.HasResult {
		lhs = inst.Result.String() + " = "
	}

	switch inst.Op {
	case OpIconst:
		t, _ := f.valueType(inst.Result)
		return fmt.Sprintf("%s%s.%s 0x%x", lhs, inst.Op, t, inst.Imm)
	case OpUshr:
		return fmt.Sprintf("%s%s %s, %d", lhs, inst.Op, joinValues(inst.Args), inst.Imm)
	case OpIcmp:
		return fmt.Sprintf("%s%s %s %s", lhs, inst.Op, IntCC(inst.Cond), joinValues(inst.Args))
	case OpFcmp:
		return fmt.Sprintf("%s%s %s %s", lhs, inst.Op, FloatCC(inst.Cond), joinValues(inst.Args))
	case OpCall:
		return fmt.Sprintf("%s%s %s(%s)", lhs, inst.Op, inst.Func, joinValues(inst.Args))
	case OpJump:
		return fmt.Sprintf("%s %s", inst.Op, formatBlockCall(inst.Targets[0]))
	case OpBrif:
		return fmt.Sprintf("%s %s, %s, %s", inst.Op, joinValues(inst.Args),
			formatBlockCall(inst.Targets[0]), formatBlockCall(inst.Targets[1]))
	case OpReturn:
		if len(inst.Args) == 0 {
			return inst.Op.String()
		}
		return fmt.Sprintf("%s %s", inst.Op, joinValues(inst.Args))
	default:
		return fmt.Sprintf("%s%s %s", lhs, inst.Op, joinValues(inst.Args))
	}
}
