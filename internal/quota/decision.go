// Package quota is the enforcement engine: pricing, quota decisions and the
// accounting mutator. It reads and writes entities only through the storage
// layer and holds no state of its own between jobs.
package quota

import "github.com/printquota/server/internal/storage"

// Decision is the outcome of a quota check.
type Decision string

const (
	// DecisionAllow lets the job print.
	DecisionAllow Decision = "ALLOW"
	// DecisionWarn lets the job print but the user should be warned.
	DecisionWarn Decision = "WARN"
	// DecisionDeny rejects the job.
	DecisionDeny Decision = "DENY"
	// DecisionPolicyAllow lets the job print because the printer policy
	// allows users without a quota record.
	DecisionPolicyAllow Decision = "POLICY_ALLOW"
	// DecisionPolicyDeny rejects the job because the printer policy denies
	// users without a quota record.
	DecisionPolicyDeny Decision = "POLICY_DENY"
)

// Denied reports whether the decision rejects the job.
func (d Decision) Denied() bool {
	return d == DecisionDeny || d == DecisionPolicyDeny
}

// Action is the history action string recorded for this decision.
func (d Decision) Action() string { return string(d) }

var decisionRank = map[Decision]int{
	DecisionAllow:       0,
	DecisionPolicyAllow: 1,
	DecisionWarn:        2,
	DecisionPolicyDeny:  3,
	DecisionDeny:        3,
}

// worse returns the more restrictive of two decisions.
func worse(a, b Decision) Decision {
	if decisionRank[b] > decisionRank[a] {
		return b
	}
	return a
}

// Policy is the printer's stance on users without a quota record.
type Policy string

const (
	// PolicyAllow admits unknown users.
	PolicyAllow Policy = "allow"
	// PolicyDeny rejects unknown users.
	PolicyDeny Policy = "deny"
	// PolicyExternal defers to an external tool that is expected to create
	// the missing record. The engine itself cannot run it, so the decision
	// is a policy denial; the caller may retry after provisioning.
	PolicyExternal Policy = "external"
)

// Enforcement selects how the pre-job estimate is used.
type Enforcement string

const (
	// EnforcementStrict charges the estimate against counters and balances
	// before comparing.
	EnforcementStrict Enforcement = "strict"
	// EnforcementLaxist compares current counters only; the job's real size
	// is accounted after printing.
	EnforcementLaxist Enforcement = "laxist"
)

// fallback maps a printer policy to the decision for a missing quota record.
func fallback(policy Policy) Decision {
	if policy == PolicyAllow {
		return DecisionPolicyAllow
	}
	return DecisionPolicyDeny
}

// bypass returns the decision mandated by the user's limiting mode alone,
// or "" when normal quota arithmetic applies.
func bypass(user *storage.User) Decision {
	switch user.LimitBy {
	case storage.LimitNoQuota, storage.LimitNoChange:
		return DecisionAllow
	case storage.LimitNoPrint:
		return DecisionDeny
	}
	return ""
}
