package authzopa

import "github.com/open-policy-agent/opa/ast"

// Role policies run inside the engine, so only pure builtins are
// compiled in. Anything that reaches the network or filesystem is out.
var allowedBuiltins = map[string]struct{}{
	"abs":            {},
	"concat":         {},
	"contains":       {},
	"count":          {},
	"endswith":       {},
	"eq":             {},
	"equal":          {},
	"json.marshal":   {},
	"json.unmarshal": {},
	"lower":          {},
	"max":            {},
	"min":            {},
	"neq":            {},
	"object.get":     {},
	"object.union":   {},
	"sort":           {},
	"split":          {},
	"sprintf":        {},
	"startswith":     {},
	"substring":      {},
	"sum":            {},
	"trim":           {},
	"upper":          {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
