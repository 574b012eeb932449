// Package committee implements the multi-reviewer vote: a panel gathers
// independent judgments concurrently and an aggregator decides the outcome
// under score-sensitive thresholds.
package committee

// Approval is one reviewer's judgment category.
type Approval string

const (
	InFavor Approval = "in_favor"
	Against Approval = "against"
	Abstain Approval = "abstain"
)

// RemarkKind maps a structured remark to a feedback ledger category.
type RemarkKind string

const (
	RemarkRemove RemarkKind = "remove"
	RemarkAdd    RemarkKind = "add"
	RemarkChange RemarkKind = "change"
)

// Remark is one structured feedback item from a voter. Remarks merge into the
// section ledgers exactly like gate findings, even when the voter approved.
type Remark struct {
	Section string     `json:"section,omitempty"`
	Kind    RemarkKind `json:"kind"`
	Text    string     `json:"text"`
}

// Vote is one reviewer's complete judgment.
type Vote struct {
	Reviewer string   `json:"reviewer"`
	Approval Approval `json:"approval"`
	Remarks  []Remark `json:"remarks,omitempty"`

	// CompletenessConcerns are free-text worries about coverage that did not
	// rise to a structured remark.
	CompletenessConcerns []string `json:"completeness_concerns,omitempty"`
}

// Tally aggregates the votes of one round.
type Tally struct {
	InFavor int    `json:"in_favor"`
	Against int    `json:"against"`
	Abstain int    `json:"abstain"`
	Votes   []Vote `json:"votes,omitempty"`
}

// TallyVotes counts the three approval categories. Unknown approval values
// count as abstentions: an unparseable judgment is not a silent pass and not
// a veto.
func TallyVotes(votes []Vote) Tally {
	t := Tally{Votes: votes}
	for _, v := range votes {
		switch v.Approval {
		case InFavor:
			t.InFavor++
		case Against:
			t.Against++
		default:
			t.Abstain++
		}
	}
	return t
}
