package types

import "time"

// ResourceKind identifies one of the canonical entity types served by the
// virtualization adapter. Kinds are a closed set; unknown kinds are rejected
// at the API boundary with validation_invalid_kind.
type ResourceKind string

const (
	KindAccount        ResourceKind = "account"
	KindService        ResourceKind = "service"
	KindCart           ResourceKind = "cart"
	KindBillingAccount ResourceKind = "billing_account"
	KindJob            ResourceKind = "job"
	KindSchedule       ResourceKind = "schedule"
	KindProblem        ResourceKind = "problem"
)

// AllKinds enumerates every canonical resource kind, in a stable order.
var AllKinds = []ResourceKind{
	KindAccount,
	KindService,
	KindCart,
	KindBillingAccount,
	KindJob,
	KindSchedule,
	KindProblem,
}

// Valid reports whether the kind is part of the closed set.
func (k ResourceKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// BackendKind selects which connector serves a resource kind.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"  // relational store, direct read/write
	BackendRemote BackendKind = "remote" // CRM over HTTP
	BackendEngine BackendKind = "engine" // jobs/schedules/problems owned by this engine
)

// JobState is the lifecycle state of a BatchJob.
type JobState string

const (
	JobPending    JobState = "pending"
	JobOpen       JobState = "open"
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobCancelled  JobState = "cancelled"
	JobFailed     JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobFailed:
		return true
	}
	return false
}

// Recurrence is the cadence rule governing when a schedule becomes due.
type Recurrence string

const (
	RecurrenceOnce     Recurrence = "once"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWeekdays Recurrence = "weekdays"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceCustom   Recurrence = "custom"
)

// RequiresDays reports whether the pattern needs an explicit weekday set.
// The schedule invariant is: RecurrenceDays non-empty iff RequiresDays().
func (r Recurrence) RequiresDays() bool {
	return r == RecurrenceWeekly || r == RecurrenceCustom
}

// Valid reports whether the recurrence pattern is known.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekdays, RecurrenceWeekly, RecurrenceCustom:
		return true
	}
	return false
}

// ProblemStatus is the lifecycle state of a tracked ServiceProblem.
type ProblemStatus string

const (
	ProblemPending      ProblemStatus = "pending"
	ProblemAcknowledged ProblemStatus = "acknowledged"
	ProblemInProgress   ProblemStatus = "in_progress"
	ProblemResolved     ProblemStatus = "resolved"
	ProblemRejected     ProblemStatus = "rejected"
	ProblemHeld         ProblemStatus = "held"
	ProblemCancelled    ProblemStatus = "cancelled"
	ProblemClosed       ProblemStatus = "closed"
)

// Open reports whether the problem is still awaiting a remediation outcome.
func (s ProblemStatus) Open() bool {
	switch s {
	case ProblemPending, ProblemAcknowledged, ProblemInProgress, ProblemHeld:
		return true
	}
	return false
}

// RemediationCategory is one of the closed set of defect classes the pipeline
// knows how to detect and patch.
type RemediationCategory string

const (
	// CategorySolutionEmpty covers services whose solution document carries
	// none of the mandatory solution attributes.
	CategorySolutionEmpty RemediationCategory = "SolutionEmpty"
	// CategoryPICIncomplete covers services missing person-in-charge contact
	// attributes (name, email, phone).
	CategoryPICIncomplete RemediationCategory = "PICIncomplete"
	// CategoryBillingUnlinked covers services with no billing account
	// reference attached.
	CategoryBillingUnlinked RemediationCategory = "BillingUnlinked"
)

// AllCategories enumerates the known remediation categories.
var AllCategories = []RemediationCategory{
	CategorySolutionEmpty,
	CategoryPICIncomplete,
	CategoryBillingUnlinked,
}

// Valid reports whether the category is part of the closed set.
func (c RemediationCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ItemOutcome is the terminal pipeline result for one work item.
type ItemOutcome string

const (
	OutcomeSuccess       ItemOutcome = "success"
	OutcomeResyncPending ItemOutcome = "resync_pending" // patched, downstream resync failed
	OutcomeFailed        ItemOutcome = "failed"
	OutcomeSkipped       ItemOutcome = "skipped"       // no issue detected
	OutcomeNotPatchable  ItemOutcome = "not_patchable" // no authoritative source
)

// SummaryBucket maps the outcome onto exactly one job summary counter.
// Patched items count as successful even when the downstream resync is still
// pending; not-patchable items were never attempted and count as skipped.
func (o ItemOutcome) SummaryBucket() SummaryField {
	switch o {
	case OutcomeSuccess, OutcomeResyncPending:
		return SummarySuccessful
	case OutcomeFailed:
		return SummaryFailed
	default:
		return SummarySkipped
	}
}

// SummaryField names one of the mutually exclusive job summary counters.
type SummaryField string

const (
	SummarySuccessful SummaryField = "successful"
	SummaryFailed     SummaryField = "failed"
	SummarySkipped    SummaryField = "skipped"
)

// Provenance labels where a patch value was resolved from.
type Provenance string

const (
	ProvenanceDenormalized Provenance = "denormalized"    // same-resource denormalized field
	ProvenanceLookup       Provenance = "lookup"          // one-hop related-resource lookup
	ProvenanceConstant     Provenance = "policy_constant" // fixed value from category policy
)

// SourceSystem identifies the authoritative backend a value came from.
type SourceSystem string

const (
	SourceLocal SourceSystem = "local"
	SourceCRM   SourceSystem = "crm"
)

// Weekdays is a set of weekdays gating weekly/custom recurrence patterns.
type Weekdays []time.Weekday

// Contains reports whether the set includes the given weekday.
func (w Weekdays) Contains(d time.Weekday) bool {
	for _, x := range w {
		if x == d {
			return true
		}
	}
	return false
}
