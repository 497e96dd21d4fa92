// ABOUTME: Change request data model and lifecycle stage machine
// ABOUTME: Stage is the single source of truth; timestamps are side effects

package changerequest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glossarium/termstore/pkg/revision"
)

// ObjectType is the storage type segment for change requests.
const ObjectType = "change-requests"

// Stage is a change request's lifecycle stage.
type Stage string

const (
	StageDraft             Stage = "Draft"
	StageProposal          Stage = "Proposal"
	StageEvaluation        Stage = "Evaluation"
	StageValidation        Stage = "Validation"
	StageExtendedProcedure Stage = "Extended procedure"
	StageResolved          Stage = "Resolved"
	StageWithdrawn         Stage = "Withdrawn"
	StageRejected          Stage = "Rejected"
	StageTest              Stage = "Test"
)

// Phase groups stages into the coarse lifecycle steps the transition
// rules care about.
type Phase int

const (
	PhaseDraft Phase = iota
	PhaseInReview
	PhaseArchived
	PhaseTest
)

var stagePhases = map[Stage]Phase{
	StageDraft:             PhaseDraft,
	StageProposal:          PhaseInReview,
	StageEvaluation:        PhaseInReview,
	StageValidation:        PhaseInReview,
	StageExtendedProcedure: PhaseInReview,
	StageResolved:          PhaseArchived,
	StageWithdrawn:         PhaseArchived,
	StageRejected:          PhaseArchived,
	StageTest:              PhaseTest,
}

// Phase returns the stage's lifecycle phase.
func (s Stage) Phase() Phase {
	return stagePhases[s]
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	_, ok := stagePhases[s]
	return ok
}

var (
	// ErrUnknownStage rejects transitions to stages outside the table.
	ErrUnknownStage = errors.New("changerequest: unknown stage")
	// ErrResolved rejects changes to an archived change request.
	ErrResolved = errors.New("changerequest: change request is resolved")
	// ErrSubmitted rejects revision edits on a submitted change request.
	ErrSubmitted = errors.New("changerequest: change request is submitted")
)

// StagedRevision is a proposed revision stored inside a change
// request: a revision stripped of its change-request tag and author
// (both implied by the container) and augmented with the created IDs
// once accepted.
type StagedRevision struct {
	Object            json.RawMessage `json:"object"`
	Parents           []string        `json:"parents"`
	TimeCreated       time.Time       `json:"timeCreated"`
	CreatedObjectID   string          `json:"createdObjectID,omitempty"`
	CreatedRevisionID string          `json:"createdRevisionID,omitempty"`
}

// ChangeRequest is a container of proposed revisions across one or
// more objects, keyed objectType then objectID, subject to the stage
// lifecycle.
type ChangeRequest struct {
	ID            string                               `json:"id"`
	Author        revision.Author                      `json:"author"`
	TimeCreated   time.Time                            `json:"timeCreated"`
	TimeSubmitted *time.Time                           `json:"timeSubmitted,omitempty"`
	TimeResolved  *time.Time                           `json:"timeResolved,omitempty"`
	Revisions     map[string]map[string]StagedRevision `json:"revisions"`
	Stage         Stage                                `json:"stage"`
	Submitter     *revision.Author                     `json:"submitter,omitempty"`
	ReviewerNotes map[string]string                    `json:"reviewerNotes,omitempty"`
}

// Submitted reports whether the change request left the draft phase.
func (cr *ChangeRequest) Submitted() bool {
	p := cr.Stage.Phase()
	return p == PhaseInReview || p == PhaseArchived
}

// Resolved reports whether the change request reached an archived
// stage.
func (cr *ChangeRequest) Resolved() bool {
	return cr.Stage.Phase() == PhaseArchived
}

// InReview reports whether the change request may currently be acted
// upon (accepted, rejected, resolved).
func (cr *ChangeRequest) InReview() bool {
	return cr.Stage.Phase() == PhaseInReview
}

// RevisionCount returns the number of staged revisions across all
// object types.
func (cr *ChangeRequest) RevisionCount() int {
	n := 0
	for _, byID := range cr.Revisions {
		n += len(byID)
	}
	return n
}

// TransitionTo moves the change request to the next stage. A
// transition to the current stage is a no-op. Entering an in-review
// stage from draft stamps TimeSubmitted; entering an archived stage
// from in-review stamps TimeResolved. Archived change requests accept
// no further transitions. Finer-grained legality between in-review
// stages is left to the caller.
func (cr *ChangeRequest) TransitionTo(next Stage, now time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, next)
	}
	if next == cr.Stage {
		return nil
	}
	if cr.Resolved() {
		return fmt.Errorf("%w: cannot leave %q", ErrResolved, cr.Stage)
	}

	from := cr.Stage.Phase()
	to := next.Phase()

	if from == PhaseDraft && to == PhaseInReview && cr.TimeSubmitted == nil {
		cr.TimeSubmitted = &now
	}
	if from == PhaseInReview && to == PhaseArchived && cr.TimeResolved == nil {
		cr.TimeResolved = &now
	}

	cr.Stage = next
	return nil
}
