package ast

// Children returns the direct sub-expressions of e in evaluation order.
// The nil placeholder of a curried lambda is skipped.
func Children(e Expression) []Expression {
	switch n := e.(type) {
	case *ContextExpression:
		return []Expression{n.Body}
	case *ItemExpression:
		return []Expression{n.Body}
	case *ArrayLiteral:
		return n.Elements
	case *Member:
		return []Expression{n.Operand}
	case *Index:
		return []Expression{n.Operand, n.Key}
	case *Not:
		return []Expression{n.Operand}
	case *Comparison:
		return []Expression{n.Left, n.Right}
	case *And:
		return n.Operands
	case *Or:
		return n.Operands
	case *Condition:
		return []Expression{n.Test, n.IfTrue, n.IfFalse}
	case *Lambda:
		var out []Expression
		for _, c := range n.Currying {
			if c != nil {
				out = append(out, c)
			}
		}
		return append(out, n.Body)
	case *Filter:
		out := []Expression{n.Operand}
		if n.Lambda != nil {
			out = append(out, n.Lambda)
		}
		if n.Arg != nil {
			out = append(out, n.Arg)
		}
		return out
	case *CapabilityQuery:
		return []Expression{n.Operand, n.Requirements}
	case *Constructor:
		return n.Args
	}
	return nil
}

// Inspect traverses the tree rooted at e in depth-first order, calling f
// for each node. If f returns false, the children of that node are
// skipped.
func Inspect(e Expression, f func(Expression) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, f)
	}
}

// CountEverything reports how often the tree reads the Everything root:
// 0, 1, or 2 meaning two or more. A read inside a lambda body counts as
// two since the body runs once per element.
func CountEverything(e Expression) int {
	return min(countEverything(e, false), 2)
}

func countEverything(e Expression, inLambda bool) int {
	switch n := e.(type) {
	case nil:
		return 0
	case *VariableReference:
		if n.Variable != Everything {
			return 0
		}
		if inLambda {
			return 2
		}
		return 1
	case *Lambda:
		count := 0
		for _, c := range n.Currying {
			count += countEverything(c, inLambda)
		}
		return count + countEverything(n.Body, true)
	}

	count := 0
	for _, c := range Children(e) {
		count += countEverything(c, inLambda)
		if count >= 2 {
			return 2
		}
	}
	return count
}
