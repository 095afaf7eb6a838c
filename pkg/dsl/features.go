package dsl

// RequiredIndicators walks the strategy AST and collects the distinct
// indicator calls it references, in first-encounter order. These are
// the series the evaluator must compute before signals can be produced.
func RequiredIndicators(s *Strategy) []Indicator {
	seen := make(map[Indicator]bool)
	var out []Indicator

	add := func(ind Indicator) {
		if !seen[ind] {
			seen[ind] = true
			out = append(out, ind)
		}
	}

	var walkValue func(v Value)
	walkValue = func(v Value) {
		if ind, ok := v.(Indicator); ok {
			add(ind)
		}
	}

	var walkExpr func(e Expr)
	walkExpr = func(e Expr) {
		switch node := e.(type) {
		case *Comparison:
			walkValue(node.Left)
			walkValue(node.Right)
		case *CrossExpr:
			walkValue(node.Right)
		case *LogicalExpr:
			for _, op := range node.Operands {
				walkExpr(op)
			}
		}
	}

	walkExpr(s.Entry)
	walkExpr(s.Exit)
	return out
}
