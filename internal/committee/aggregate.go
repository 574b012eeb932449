package committee

import (
	"github.com/draftworks/docforge/internal/gate"
	"github.com/draftworks/docforge/internal/registry"
)

// Outcome is the committee's collective decision.
type Outcome string

const (
	Approved Outcome = "approved"
	Rejected Outcome = "rejected"
)

// LowConfidenceScore is the completeness score below which approval requires
// a supermajority of in-favor votes.
const LowConfidenceScore = 50.0

// Aggregate decides the committee outcome. The rules form a strict total
// order of tie-breaks, evaluated top to bottom:
//
//  1. any against vote vetoes;
//  2. zero in-favor votes reject;
//  3. a low-confidence document (completeness < 50) rejects unless in-favor
//     reaches the supermajority floor;
//  4. in-favor strictly greater than abstain approves;
//  5. everything else, including an in-favor/abstain tie, rejects.
//
// Abstention is not a silent pass: this is deliberately NOT a simple
// majority.
func Aggregate(t Tally, overallCompleteness float64, supermajorityFloor int) Outcome {
	switch {
	case t.Against > 0:
		return Rejected
	case t.InFavor == 0:
		return Rejected
	case overallCompleteness < LowConfidenceScore && t.InFavor < supermajorityFloor:
		return Rejected
	case t.InFavor > t.Abstain:
		return Approved
	default:
		return Rejected
	}
}

// MergeFeedback routes every voter's structured remarks into the section
// ledgers, forcing the affected sections to needs_revision. Remarks without a
// valid section affinity go through the gate router's heuristic. Returns the
// number of remarks merged.
func MergeFeedback(reg *registry.Registry, router *gate.Router, votes []Vote) int {
	merged := 0
	for _, v := range votes {
		for _, rm := range v.Remarks {
			section := router.RouteRemark(rm.Section, rm.Text)

			var delta registry.Feedback
			switch rm.Kind {
			case RemarkRemove:
				delta.ToRemove = []string{rm.Text}
			case RemarkAdd:
				delta.ToAdd = []string{rm.Text}
			default:
				delta.ToChange = []string{rm.Text}
			}
			if err := reg.AddFeedback(section, delta); err != nil {
				continue
			}
			merged++
		}
	}
	return merged
}
