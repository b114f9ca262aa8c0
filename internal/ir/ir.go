// Package ir is the SSA intermediate form handed to the jit backend.
// A Function is a list of basic blocks; values flow between blocks as
// block parameters rather than phi nodes.
package ir

import "fmt"

// Type is the machine type of an SSA value.
type Type uint8

const (
	// I8 holds flags produced by comparisons: 0 or 1.
	I8 Type = iota + 1
	// I64 holds full words: raw Vars, integer payloads and float bits.
	I64
)

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Value names an SSA value within one Function.
type Value uint32

func (v Value) String() string { return fmt.Sprintf("v%d", uint32(v)) }

// Block names a basic block within one Function.
type Block uint32

func (b Block) String() string { return fmt.Sprintf("block%d", uint32(b)) }

// FuncRef names a function imported into a Function for calls.
type FuncRef uint32

func (f FuncRef) String() string { return fmt.Sprintf("fn%d", uint32(f)) }

// Signature describes parameter and return types.
type Signature struct {
	Params  []Type
	Returns []Type
}

// WordSignature returns the signature of a function taking n words and
// returning one.
func WordSignature(n int) Signature {
	params := make([]Type, n)
	for i := range params {
		params[i] = I64
	}
	return Signature{Params: params, Returns: []Type{I64}}
}

func (s Signature) String() string {
	return fmt.Sprintf("(%s) -> %s", joinTypes(s.Params), joinTypes(s.Returns))
}

func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Returns) != len(o.Returns) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Returns {
		if s.Returns[i] != o.Returns[i] {
			return false
		}
	}
	return true
}

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpIconst Opcode = iota // Imm as a constant of the result type

	// Bitwise
	OpBand
	OpBor
	OpBxor
	OpUshr // logical shift right by Imm

	// Integer arithmetic on I64, wrapping
	OpIadd
	OpIsub
	OpImul
	OpIcmp

	OpSelect       // cond ? x : y
	OpSextend32    // sign-extend the low 32 bits
	OpIreduce32    // keep the low 32 bits
	OpFcvtFromSint // signed integer to float bits

	// Float arithmetic on I64 words holding float64 bits
	OpFadd
	OpFsub
	OpFmul
	OpFdiv
	OpFcmp

	OpCall

	// Terminators
	OpJump
	OpBrif
	OpReturn
)

var opcodeNames = [...]string{
	OpIconst:       "iconst",
	OpBand:         "band",
	OpBor:          "bor",
	OpBxor:         "bxor",
	OpUshr:         "ushr",
	OpIadd:         "iadd",
	OpIsub:         "isub",
	OpImul:         "imul",
	OpIcmp:         "icmp",
	OpSelect:       "select",
	OpSextend32:    "sextend32",
	OpIreduce32:    "ireduce32",
	OpFcvtFromSint: "fcvt_from_sint",
	OpFadd:         "fadd",
	OpFsub:         "fsub",
	OpFmul:         "fmul",
	OpFdiv:         "fdiv",
	OpFcmp:         "fcmp",
	OpCall:         "call",
	OpJump:         "jump",
	OpBrif:         "brif",
	OpReturn:       "return",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	return op == OpJump || op == OpBrif || op == OpReturn
}

// IntCC is an integer comparison condition.
type IntCC uint8

const (
	IntEq IntCC = iota
	IntNe
	IntSlt
	IntSle
	IntSgt
	IntSge
	IntUlt
	IntUge
)

var intCCNames = [...]string{"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "uge"}

func (c IntCC) String() string {
	if int(c) < len(intCCNames) {
		return intCCNames[c]
	}
	return fmt.Sprintf("intcc(%d)", uint8(c))
}

// FloatCC is a float comparison condition. Every condition except FloatNe
// is false when either operand is NaN.
type FloatCC uint8

const (
	FloatEq FloatCC = iota
	FloatNe
	FloatLt
	FloatLe
	FloatGt
	FloatGe
)

var floatCCNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (c FloatCC) String() string {
	if int(c) < len(floatCCNames) {
		return floatCCNames[c]
	}
	return fmt.Sprintf("floatcc(%d)", uint8(c))
}

// BlockCall is a branch target together with the arguments bound to its
// parameters.
type BlockCall struct {
	Block Block
	Args  []Value
}

// Inst is one instruction. Fields not used by Op are zero.
type Inst struct {
	Op     Opcode
	Result Value
	// HasResult is false for terminators and calls to functions without
	// a return value.
	HasResult bool
	Args      []Value
	Imm       uint64
	// Cond is an IntCC for icmp and a FloatCC for fcmp.
	Cond    uint8
	Func    FuncRef
	Targets []BlockCall
}

// BlockData holds the parameters and instructions of one block.
type BlockData struct {
	Params []Value
	Insts  []Inst
	Sealed bool
}

// Terminator returns the final instruction when it ends the block.
func (b *BlockData) Terminator() (*Inst, bool) {
	if len(b.Insts) == 0 {
		return nil, false
	}
	last := &b.Insts[len(b.Insts)-1]
	return last, last.Op.IsTerminator()
}

// ExtFunc is a function imported into a Function by name.
type ExtFunc struct {
	Name string
	Sig  Signature
}

// Function is a complete SSA function. Blocks[0] is the entry block and
// its parameters are the function's parameters.
type Function struct {
	Name     string
	Sig      Signature
	Blocks   []*BlockData
	ExtFuncs []ExtFunc
	// ValueTypes is indexed by Value.
	ValueTypes []Type
}

// Block returns the data for b, or nil when b is out of range.
func (f *Function) Block(b Block) *BlockData {
	if int(b) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[b]
}

// NumValues returns the number of SSA values.
func (f *Function) NumValues() int { return len(f.ValueTypes) }

func (f *Function) valueType(v Value) (Type, bool) {
	if int(v) >= len(f.ValueTypes) {
		return 0, false
	}
	return f.ValueTypes[v], true
}
