// Package par evaluates PAR (periodic automatic replenishment) rules.
//
// A zone's status latches when the current quantity first satisfies the
// rule's condition and only clears once the quantity has moved a full
// replenishment quantity past the threshold. This keeps the reported status
// from flapping while stock hovers around the PAR level.
package par

import "strings"

// Status is a PAR condition.
type Status int

const (
	None Status = iota
	Above
	At
	Below
)

const (
	LabelAbove = "Above PAR"
	LabelAt    = "At PAR"
	LabelBelow = "Below PAR"
)

// Label returns the text the reports use for s.
func (s Status) Label() string {
	switch s {
	case Above:
		return LabelAbove
	case At:
		return LabelAt
	case Below:
		return LabelBelow
	default:
		return ""
	}
}

func (s Status) String() string {
	if s == None {
		return "None"
	}
	return s.Label()
}

// ParseStatus maps a report label to a Status. Unknown or blank labels are None.
func ParseStatus(label string) Status {
	switch strings.TrimSpace(label) {
	case LabelAbove:
		return Above
	case LabelAt:
		return At
	case LabelBelow:
		return Below
	default:
		return None
	}
}

// Input is one zone/model row of the PAR report.
type Input struct {
	CurQty      int
	RuleQty     int
	RuleReplQty int
	RuleStatus  Status
	Reported    Status // status currently stored against the zone, None if blank
}

// Result is the evaluated status and the quantity needed to bring the zone
// back to its PAR level.
type Result struct {
	Status  Status
	ReplQty int
}

// Evaluate applies the set/reset rules to in.
func Evaluate(in Input) Result {
	return Result{
		Status:  evaluateStatus(in),
		ReplQty: ReplenishQty(in.CurQty, in.RuleQty, in.RuleReplQty, in.RuleStatus),
	}
}

// ReplenishQty returns how many items to add (positive) or remove (negative).
func ReplenishQty(cur, q, r int, rule Status) int {
	switch rule {
	case Above:
		if cur > q-r {
			return (q - r) - cur
		}
	case Below:
		if cur < q+r {
			return (q + r) - cur
		}
	case At:
		if cur >= q {
			return (q + r) - cur
		}
		return (q - r) - cur
	}
	return 0
}

func evaluateStatus(in Input) Status {
	cur, q, r, rule := in.CurQty, in.RuleQty, in.RuleReplQty, in.RuleStatus
	if rule == None {
		return None
	}

	// set: the rule is not yet latched
	if in.Reported != rule {
		if entered(cur, q, rule) {
			return rule
		}
		return None
	}

	// reset: latched until the quantity crosses the far boundary
	switch rule {
	case Below:
		if cur >= q+r {
			return None
		}
	case Above:
		if cur <= q-r {
			return None
		}
	case At:
		if cur <= q-r || cur >= q+r {
			return None
		}
	}
	return rule
}

func entered(cur, q int, rule Status) bool {
	switch rule {
	case Below:
		return cur < q
	case Above:
		return cur > q
	case At:
		return cur == q
	}
	return false
}
