package recorder

import "sort"

// MiddlewareInfo describes one middleware's static shape for introspection,
// built by the dispatch layer from its registered middleware list.
type MiddlewareInfo struct {
	Name          string
	Priority      int
	IsConditional bool
	IsScoped      bool
	IsUnsafe      bool // not set by any dispatch layer in this module; Pipeline.Describe leaves it false
}

// Description is a structural snapshot of a pipeline's composition, built
// fresh on every call so two consecutive Describe() calls on an unmodified
// pipeline compare equal (spec §8 "introspection idempotence").
type Description struct {
	CommandType      string
	HandlerType      string
	InterceptorCount int
	Middlewares      []MiddlewareInfo
}

// Equal reports whether two Descriptions are structurally identical,
// including middleware order.
func (d Description) Equal(other Description) bool {
	if d.CommandType != other.CommandType ||
		d.HandlerType != other.HandlerType ||
		d.InterceptorCount != other.InterceptorCount ||
		len(d.Middlewares) != len(other.Middlewares) {
		return false
	}
	for i := range d.Middlewares {
		if d.Middlewares[i] != other.Middlewares[i] {
			return false
		}
	}
	return true
}

// TraceEntry is one middleware's participation (or lack thereof) in a
// single traced invocation.
type TraceEntry struct {
	Name      string
	Active    bool
	Skipped   bool
	Reason    string // "unconditional" | "conditional" | "scoped"
}

// Trace is the result of tracing a single (not-yet-executed) command
// against a pipeline's composition: which middlewares would run, in what
// order, without actually invoking the handler.
type Trace struct {
	Active           []TraceEntry
	Skipped          []TraceEntry
	Handler          string
	InterceptorCount int
}

// CompareResult is a structural diff between two Descriptions.
type CompareResult struct {
	Equal              bool
	CountDiff          int // len(b.Middlewares) - len(a.Middlewares)
	OnlyInA            []string
	OnlyInB            []string
	OrderChanged       bool
	InterceptorCountDiff int
}

// Compare structurally diffs two pipeline descriptions: middleware set
// difference, count, and whether the shared subset's relative order
// changed.
func Compare(a, b Description) CompareResult {
	res := CompareResult{
		Equal:                a.Equal(b),
		CountDiff:            len(b.Middlewares) - len(a.Middlewares),
		InterceptorCountDiff: b.InterceptorCount - a.InterceptorCount,
	}

	aNames := make(map[string]int, len(a.Middlewares))
	for i, m := range a.Middlewares {
		aNames[m.Name] = i
	}
	bNames := make(map[string]int, len(b.Middlewares))
	for i, m := range b.Middlewares {
		bNames[m.Name] = i
	}

	for name := range aNames {
		if _, ok := bNames[name]; !ok {
			res.OnlyInA = append(res.OnlyInA, name)
		}
	}
	for name := range bNames {
		if _, ok := aNames[name]; !ok {
			res.OnlyInB = append(res.OnlyInB, name)
		}
	}
	sort.Strings(res.OnlyInA)
	sort.Strings(res.OnlyInB)

	var sharedA, sharedB []string
	for _, m := range a.Middlewares {
		if _, ok := bNames[m.Name]; ok {
			sharedA = append(sharedA, m.Name)
		}
	}
	for _, m := range b.Middlewares {
		if _, ok := aNames[m.Name]; ok {
			sharedB = append(sharedB, m.Name)
		}
	}
	for i := range sharedA {
		if sharedA[i] != sharedB[i] {
			res.OrderChanged = true
			break
		}
	}

	return res
}
