package rules

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// andPredicate / orPredicate / notPredicate implement standard boolean
// composition over child predicates.
type andPredicate struct{ children []Predicate }

func And(children ...Predicate) Predicate { return andPredicate{children: children} }

func (p andPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	for _, c := range p.children {
		if !c.Evaluate(ctx, ec) {
			return false
		}
	}
	return true
}

type orPredicate struct{ children []Predicate }

func Or(children ...Predicate) Predicate { return orPredicate{children: children} }

func (p orPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	for _, c := range p.children {
		if c.Evaluate(ctx, ec) {
			return true
		}
	}
	return false
}

type notPredicate struct{ child Predicate }

func Not(child Predicate) Predicate { return notPredicate{child: child} }

func (p notPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	return !p.child.Evaluate(ctx, ec)
}

// CompareOp enumerates the comparison operators available to a Compare
// predicate, all operating on float64 after type coercion.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

type comparePredicate struct {
	field string
	op    CompareOp
	value float64
}

// Compare builds a predicate that reads a numeric field from EvalContext
// and compares it against a constant.
func Compare(field string, op CompareOp, value float64) Predicate {
	return comparePredicate{field: field, op: op, value: value}
}

func (p comparePredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	v, ok := toFloat(raw)
	if !ok {
		return false
	}
	switch p.op {
	case OpEq:
		return v == p.value
	case OpNeq:
		return v != p.value
	case OpGt:
		return v > p.value
	case OpGte:
		return v >= p.value
	case OpLt:
		return v < p.value
	case OpLte:
		return v <= p.value
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IsIn mirrors the teacher's "is_in": field value is a string member of set.
type isInPredicate struct {
	field string
	set   map[string]bool
}

func IsIn(field string, set []string) Predicate {
	m := make(map[string]bool, len(set))
	for _, s := range set {
		m[s] = true
	}
	return isInPredicate{field: field, set: m}
}

func (p isInPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	return p.set[s]
}

// ContainsPredicate mirrors the teacher's "contains": a list field
// contains a given string value.
type containsPredicate struct {
	field string
	value string
}

func Contains(field, value string) Predicate {
	return containsPredicate{field: field, value: value}
}

func (p containsPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	list, ok := raw.([]string)
	if !ok {
		return false
	}
	for _, v := range list {
		if v == p.value {
			return true
		}
	}
	return false
}

// StartsWith mirrors the teacher's "starts_with".
type startsWithPredicate struct {
	field  string
	prefix string
}

func StartsWith(field, prefix string) Predicate {
	return startsWithPredicate{field: field, prefix: prefix}
}

func (p startsWithPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, p.prefix)
}

// MatchesPattern mirrors the teacher's "matches_pattern", compiled once
// at predicate construction so evaluation never pays regexp.Compile cost.
type matchesPatternPredicate struct {
	field string
	re    *regexp.Regexp
}

func MatchesPattern(field, pattern string) Predicate {
	re := regexp.MustCompile(pattern)
	return matchesPatternPredicate{field: field, re: re}
}

func (p matchesPatternPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	return p.re.MatchString(s)
}

// IsBusinessHours mirrors the teacher's "_is_business_hours" default
// window (09:00-18:00, Monday-Friday).
type isBusinessHoursPredicate struct {
	startHour, endHour int
}

func IsBusinessHours() Predicate {
	return isBusinessHoursPredicate{startHour: 9, endHour: 18}
}

func (p isBusinessHoursPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	wd := ec.Now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hour := ec.Now.Hour()
	return hour >= p.startHour && hour < p.endHour
}

// IsWeekend mirrors the teacher's "_is_weekend".
type isWeekendPredicate struct{}

func IsWeekend() Predicate { return isWeekendPredicate{} }

func (p isWeekendPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	wd := ec.Now.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHighRiskCountry mirrors the teacher's "_is_high_risk_country": a
// country code's risk score (from a supplied table) meets or exceeds a
// threshold.
type isHighRiskCountryPredicate struct {
	field     string
	riskTable map[string]int
	threshold int
}

func IsHighRiskCountry(field string, riskTable map[string]int, threshold int) Predicate {
	return isHighRiskCountryPredicate{field: field, riskTable: riskTable, threshold: threshold}
}

func (p isHighRiskCountryPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	code, ok := raw.(string)
	if !ok {
		return false
	}
	score, ok := p.riskTable[code]
	if !ok {
		score = 50 // teacher's default-unknown score
	}
	return score >= p.threshold
}

// TimeDiffMinutesPredicate mirrors the teacher's "calculate_time_diff",
// comparing the elapsed minutes between a field's timestamp and now
// against a threshold.
type timeDiffMinutesPredicate struct {
	field     string
	op        CompareOp
	threshold float64
}

func TimeDiffMinutes(field string, op CompareOp, thresholdMinutes float64) Predicate {
	return timeDiffMinutesPredicate{field: field, op: op, threshold: thresholdMinutes}
}

func (p timeDiffMinutesPredicate) Evaluate(ctx context.Context, ec EvalContext) bool {
	raw, ok := ec.Values[p.field]
	if !ok {
		return false
	}
	t, ok := raw.(time.Time)
	if !ok {
		return false
	}
	diffMinutes := ec.Now.Sub(t).Minutes()
	return comparePredicate{value: p.threshold, op: p.op}.compareValue(diffMinutes)
}

func (p comparePredicate) compareValue(v float64) bool {
	switch p.op {
	case OpEq:
		return v == p.value
	case OpNeq:
		return v != p.value
	case OpGt:
		return v > p.value
	case OpGte:
		return v >= p.value
	case OpLt:
		return v < p.value
	case OpLte:
		return v <= p.value
	default:
		return false
	}
}
