// Package cel compiles CEL expressions used to filter rosca listings, e.g.
// `status == "active" && "alice" in members`.
package cel

import (
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// Variables declared for every filter, by name.
var variables = map[string]*cel.Type{
	"id":           cel.IntType,
	"name":         cel.StringType,
	"creator":      cel.StringType,
	"status":       cel.StringType,
	"asset":        cel.StringType,
	"amount":       cel.IntType,
	"frequency":    cel.IntType,
	"random_order": cel.BoolType,
	"participants": cel.IntType,
	"members":      cel.ListType(cel.StringType),
	"invited":      cel.ListType(cel.StringType),
	"round":        cel.IntType,
	"claimant":     cel.StringType,
	"next_pay_by":  cel.IntType,
	"final_pay_by": cel.IntType,
	"defaulters":   cel.ListType(cel.StringType),
}

// Keys returns the variable names a filter may reference, sorted.
func Keys() []string {
	out := make([]string, 0, len(variables))
	for k := range variables {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Filter is a compiled CEL expression over rosca attributes.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr. Referencing an undeclared variable or
// comparing mismatched types fails here rather than at match time.
func Compile(expr string) (*Filter, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for name, typ := range variables {
		opts = append(opts, cel.Variable(name, typ))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: cel compile: %v", roscaerr.ErrInvalidInput, issues.Err())
	}
	if !ast.OutputType().IsExactType(types.BoolType) {
		return nil, fmt.Errorf("%w: cel compile: filter must be boolean, got %s", roscaerr.ErrInvalidInput, ast.OutputType())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}

	return &Filter{expr: expr, program: prog}, nil
}

func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against st. Evaluation errors count as no match.
func (f *Filter) Match(st *rosca.State) bool {
	out, _, err := f.program.Eval(Attributes(st))
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Attributes flattens st into the variables a filter sees.
func Attributes(st *rosca.State) map[string]any {
	members := accounts(st.Participants())
	defaulters := make([]string, 0, len(st.Defaults))
	for a, n := range st.Defaults {
		if n > 0 {
			defaulters = append(defaulters, string(a))
		}
	}
	slices.Sort(defaulters)
	return map[string]any{
		"id":           int64(st.ID),
		"name":         st.Config.Name,
		"creator":      string(st.Creator),
		"status":       st.Status.String(),
		"asset":        st.Config.Asset.String(),
		"amount":       int64(st.Config.Amount),
		"frequency":    int64(st.Config.Frequency),
		"random_order": st.Config.RandomOrder,
		"participants": int64(len(members)),
		"members":      members,
		"invited":      accounts(st.Invited),
		"round":        int64(st.Round),
		"claimant":     string(st.Claimant),
		"next_pay_by":  int64(st.NextPayBy),
		"final_pay_by": int64(st.FinalPayBy),
		"defaulters":   defaulters,
	}
}

func accounts(in []rosca.AccountID) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = string(a)
	}
	return out
}
