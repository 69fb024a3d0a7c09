package storage

import "time"

// Job actions recorded in the history. The first five mirror quota
// decisions; Cancel and Refund are set after the fact.
const (
	ActionAllow       = "ALLOW"
	ActionWarn        = "WARN"
	ActionDeny        = "DENY"
	ActionPolicyAllow = "POLICY_ALLOW"
	ActionPolicyDeny  = "POLICY_DENY"
	ActionCancel      = "CANCEL"
	ActionRefund      = "REFUND"
)

// Job is one immutable entry in a printer's job history.
type Job struct {
	Object
	UserName    string
	PrinterName string

	JobID              string
	PrinterPageCounter int // printer's hardware counter at completion
	Action             string
	Date               time.Time

	JobSize  Option[int]     // empty until measured
	JobPrice Option[float64] // empty until priced

	FileName  string
	Title     string
	Copies    int
	Options   string
	HostName  string
	SizeBytes int64
	MD5Sum    string

	BillingCode string

	// Pre-flight estimate captured before printing; the measured size and
	// price above replace it once known.
	PrecomputedSize  Option[int]
	PrecomputedPrice Option[float64]
}

// Refundable reports whether the job can be refunded: it must have consumed
// pages and must not already be denied, cancelled or refunded.
func (j *Job) Refundable() bool {
	if size, ok := j.JobSize.Get(); !ok || size == 0 {
		return false
	}
	switch j.Action {
	case ActionDeny, ActionPolicyDeny, ActionCancel, ActionRefund:
		return false
	}
	return true
}

// LastJob is the mutable pointer to a printer's most recent history entry,
// used when the job size is only known after printing completes.
type LastJob struct {
	Job
	Printer *Printer
}

// NewLastJob returns an empty, non-existing last-job placeholder.
func NewLastJob(printer *Printer) *LastJob {
	return &LastJob{Job: Job{PrinterName: printer.Name}, Printer: printer}
}
