package domain

// OutcomeTag classifies the result of one target call.
type OutcomeTag string

const (
	OutcomeSuccess   OutcomeTag = "success"
	OutcomeDuplicate OutcomeTag = "duplicate"
	OutcomeError     OutcomeTag = "error"
)

func (t OutcomeTag) String() string { return string(t) }

// TargetOutcome is produced exactly once per invoked target. It never carries
// credentials or tokens.
type TargetOutcome struct {
	Tag    OutcomeTag
	Reason string
	Detail string
}

func Succeeded() TargetOutcome {
	return TargetOutcome{Tag: OutcomeSuccess, Reason: "OK"}
}

func Duplicated(reason string) TargetOutcome {
	return TargetOutcome{Tag: OutcomeDuplicate, Reason: reason}
}

func Failed(reason string, detail string) TargetOutcome {
	return TargetOutcome{Tag: OutcomeError, Reason: reason, Detail: detail}
}

func (o TargetOutcome) IsSuccess() bool { return o.Tag == OutcomeSuccess }
func (o TargetOutcome) IsError() bool   { return o.Tag == OutcomeError }

// AuditStatus collapses the outcome to the audit column value.
func (o TargetOutcome) AuditStatus() string {
	if o.IsSuccess() {
		return "OK"
	}
	return "ERROR"
}

// AggregateStatus is the client-facing status of a whole call.
type AggregateStatus string

const (
	AggregateOK      AggregateStatus = "OK"
	AggregatePartial AggregateStatus = "PARTIAL"
	AggregateError   AggregateStatus = "ERROR"
)

func (s AggregateStatus) String() string { return string(s) }

// Reconcile folds the outcomes of the requested targets into one status.
// Duplicate counts as not successful. A single target never yields PARTIAL.
func Reconcile(outcomes map[Target]TargetOutcome) AggregateStatus {
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.IsSuccess() {
			succeeded++
		}
	}

	switch {
	case len(outcomes) == 0 || succeeded == 0:
		return AggregateError
	case succeeded == len(outcomes):
		return AggregateOK
	default:
		return AggregatePartial
	}
}
