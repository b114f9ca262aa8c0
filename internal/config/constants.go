package config

const SourceFileExt = ".rol"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".rol", ".lisp"}

// ConfigFileName is the file FindConfig looks for.
const ConfigFileName = "rol.yaml"

// Special form names
const (
	LetFormName    = "let"
	IfFormName     = "if"
	LambdaFormName = "lambda"
)

// Literal names recognised by the reader
const (
	TrueLiteral  = "true"
	FalseLiteral = "false"
	NilLiteral   = "nil"
)

// Built-in operator names
const (
	AddOpName = "+"
	SubOpName = "-"
	MulOpName = "*"
	DivOpName = "/"
	ModOpName = "%"
	EqOpName  = "="
	NeOpName  = "!="
	LtOpName  = "<"
	LeOpName  = "<="
	GtOpName  = ">"
	GeOpName  = ">="
	AndOpName = "and"
	OrOpName  = "or"
	NotOpName = "not"
)

// Runtime helper symbols registered with the jit module
const (
	EnvGetSymbol    = "env_get"
	EnvCreateSymbol = "env_create"
	EnvSetSymbol    = "env_set"
	TruthySymbol    = "rt_truthy"
	EqualsSymbol    = "rt_equals"
	CompareSymbol   = "rt_compare"
	ModSymbol       = "rt_mod"
)

// CompiledFuncPrefix names emitted functions: compiled_expr_0, compiled_expr_1, ...
const CompiledFuncPrefix = "compiled_expr_"
