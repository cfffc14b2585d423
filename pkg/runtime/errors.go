package runtime

import "fmt"

// MissingParameterError reports a required model entry that was not
// supplied.
type MissingParameterError struct {
	Tag  string
	Name string
}

func (e *MissingParameterError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("missing required parameter %q", e.Name)
	}
	return fmt.Sprintf("tag %s: missing required parameter %q", e.Tag, e.Name)
}

// ParameterTypeError reports a model entry that cannot be converted to the
// parameter's type.
type ParameterTypeError struct {
	Name string
	Want ParamKind
	Err  error
}

func (e *ParameterTypeError) Error() string {
	return fmt.Sprintf("parameter %q: cannot use value as %s: %v", e.Name, e.Want, e.Err)
}

func (e *ParameterTypeError) Unwrap() error { return e.Err }

// EvalError reports a failed expression evaluation.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating {%s}: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ValueError reports a value that cannot be written or iterated.
type ValueError struct {
	Value any
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("value of type %T: %v", e.Value, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

// UnknownTagError is returned by Registry.Render for names the registry
// does not hold.
type UnknownTagError struct {
	Name string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown tag %q", e.Name)
}
