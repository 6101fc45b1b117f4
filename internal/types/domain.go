package types

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------------------------------------
// Canonical resources
// ---------------------------------------------------------------------------

// ResourceRef is a nested reference carried inside a canonical resource.
// Name is resolved from denormalized data where available and deliberately
// left nil otherwise; references never trigger extra backend round trips.
type ResourceRef struct {
	ID   string  `json:"id"`
	Href string  `json:"href,omitempty"`
	Name *string `json:"name"`
}

// Resource is the uniform typed record the virtualization adapter exposes for
// every kind, regardless of which backend stores it. Identity is an opaque
// string id, stable across backends. Every field is either sourced from
// exactly one backend field or computed deterministically from others.
type Resource struct {
	Kind      ResourceKind   `json:"kind"`
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// String returns the named field as a string. Missing, nil, or non-string
// values yield the empty string.
func (r *Resource) String(field string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[field].(string)
	return s
}

// Ref returns the named field as a ResourceRef, tolerating both the typed
// form and the generic map form produced by JSON decoding.
func (r *Resource) Ref(field string) (ResourceRef, bool) {
	if r == nil || r.Fields == nil {
		return ResourceRef{}, false
	}
	switch v := r.Fields[field].(type) {
	case ResourceRef:
		return v, true
	case *ResourceRef:
		if v != nil {
			return *v, true
		}
	case map[string]any:
		ref := ResourceRef{}
		ref.ID, _ = v["id"].(string)
		ref.Href, _ = v["href"].(string)
		if name, ok := v["name"].(string); ok {
			ref.Name = &name
		}
		if ref.ID != "" {
			return ref, true
		}
	}
	return ResourceRef{}, false
}

// Empty reports whether the named field is absent, nil, or an empty string.
func (r *Resource) Empty(field string) bool {
	if r == nil || r.Fields == nil {
		return true
	}
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return true
	}
	s, isStr := v.(string)
	return isStr && s == ""
}

// ---------------------------------------------------------------------------
// Remediation work
// ---------------------------------------------------------------------------

// WorkItem is a single candidate record selected for one remediation attempt.
// It is re-derived from current resource state on every run and is never
// persisted independently.
type WorkItem struct {
	ResourceID      string              `json:"resource_id"`
	Kind            ResourceKind        `json:"kind"`
	Category        RemediationCategory `json:"category"`
	MandatoryFields []string            `json:"mandatory_fields"`
}

// PatchField is one field the pipeline proposes to write, with provenance.
// A PatchField is only ever emitted when its value was resolved from an
// authoritative upstream source; unresolvable fields are reported
// not-patchable instead, never guessed.
type PatchField struct {
	Field        string       `json:"field"`
	Value        any          `json:"value"`
	Provenance   Provenance   `json:"provenance"`
	SourceSystem SourceSystem `json:"source_system"`
}

// PatchPlan is the computed set of field values one pipeline run proposes to
// write. Plans are computed fresh per attempt and never cached across runs,
// since upstream data can change between runs.
type PatchPlan struct {
	WorkItemID         string       `json:"work_item_id"`
	ServiceType        string       `json:"service_type,omitempty"`
	MissingFields      []string     `json:"missing_fields"`
	PatchableFields    []PatchField `json:"patchable_fields"`
	NotPatchableFields []string     `json:"not_patchable_fields"`
	Warnings           []string     `json:"warnings,omitempty"`
	CanPatch           bool         `json:"can_patch"`
}

// ItemResult records the terminal pipeline outcome for one work item,
// including per-field apply results for dashboard drill-down.
type ItemResult struct {
	ResourceID   string            `json:"resource_id"`
	Outcome      ItemOutcome       `json:"outcome"`
	FieldResults map[string]string `json:"field_results,omitempty"` // field -> "applied" | error one-liner
	Err          string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Batch scheduling
// ---------------------------------------------------------------------------

// SelectionCriteria is the declarative filter a schedule uses to enumerate
// candidate work items. Keys are canonical field names.
type SelectionCriteria map[string]string

// BatchSchedule is a recurring policy that spawns batch jobs. Invariants:
// WindowStart < WindowEnd within a day; RecurrenceDays is non-empty iff the
// pattern requires it; NextExecution is always >= now while IsActive.
// Mutated only by the scheduler control loop and operator edits, never by
// the patch pipeline.
type BatchSchedule struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name" validate:"required,max=200"`
	IsActive             bool                `json:"is_active"`
	Category             RemediationCategory `json:"category"`
	Recurrence           Recurrence          `json:"recurrence"`
	RecurrenceDays       Weekdays            `json:"recurrence_days,omitempty"`
	WindowStart          string              `json:"window_start"` // "HH:MM" in Timezone
	WindowEnd            string              `json:"window_end"`   // "HH:MM" in Timezone
	Timezone             string              `json:"timezone"`
	MaxBatchSize         int                 `json:"max_batch_size"`
	SelectionCriteria    SelectionCriteria   `json:"selection_criteria,omitempty"`
	TotalExecutions      int                 `json:"total_executions"`
	SuccessfulExecutions int                 `json:"successful_executions"`
	FailedExecutions     int                 `json:"failed_executions"`
	LastExecutionID      string              `json:"last_execution_id,omitempty"`
	NextExecution        *time.Time          `json:"next_execution,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// JobSummary tracks per-item outcome counts for one batch job. Counts are
// monotonically non-decreasing and Successful+Failed+Skipped+Pending equals
// the number of items actually enumerated at every point in the run.
type JobSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Pending    int `json:"pending"`
}

// BatchJob is one concrete execution of remediation work. A job is owned
// exclusively by its creator (the control loop or an operator run-now
// request); only the batch executor mutates it while running.
type BatchJob struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	State             JobState            `json:"state"`
	Category          RemediationCategory `json:"category"`
	RequestedQuantity int                 `json:"requested_quantity"`
	ActualQuantity    int                 `json:"actual_quantity"`
	Summary           JobSummary          `json:"summary"`
	CurrentItemID     string              `json:"current_item_id,omitempty"`
	CurrentItemState  string              `json:"current_item_state,omitempty"`
	ParentScheduleID  string              `json:"parent_schedule_id,omitempty"`
	ExecutionNumber   int                 `json:"execution_number"`
	LastError         string              `json:"last_error,omitempty"`
	CancelRequested   bool                `json:"cancel_requested,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ServiceProblem is a tracked data-quality issue. Created when detection
// first confirms an issue; transitions to resolved/rejected only as a direct
// result of a batch job item outcome. History is preserved through
// StatusChangeDate/StatusChangeReason rather than overwritten.
type ServiceProblem struct {
	ID                 string              `json:"id"`
	Category           RemediationCategory `json:"category"`
	Status             ProblemStatus       `json:"status"`
	AffectedResource   ResourceRef         `json:"affected_resource"`
	RelatedJobID       string              `json:"related_job_id,omitempty"`
	ResultMessage      string              `json:"result_message,omitempty"`
	StatusChangeDate   *time.Time          `json:"status_change_date,omitempty"`
	StatusChangeReason string              `json:"status_change_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// JSONB helpers
// ---------------------------------------------------------------------------

// MarshalJSONB serializes SelectionCriteria for storage in a JSONB column.
// A nil map serializes as an empty object so the column stays non-null.
func (c SelectionCriteria) MarshalJSONB() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(c))
}
