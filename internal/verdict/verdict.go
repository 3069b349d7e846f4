// Package verdict classifies a scanned program from its marker result and the state of its
// IDL account.
package verdict

import (
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/pattern"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

const (
	summaryInconclusive     = "no IDL tooling detected; not applicable"
	summaryLikelyVulnerable = "predictable account not yet claimed; an attacker could claim it first"
	summaryLikelySafe       = "IDL account already exists"
)

// Evaluate is pure. record is only consulted when every marker is present; a nil record means
// the account does not exist.
func Evaluate(markers pattern.MarkerResult, record *types.AccountRecord) types.Verdict {
	if !markers.All() {
		return types.VerdictInconclusive
	}
	if record == nil || !record.Exists {
		return types.VerdictLikelyVulnerable
	}
	return types.VerdictLikelySafe
}

// Summary returns the one-line explanation printed next to a verdict.
func Summary(v types.Verdict) string {
	switch v {
	case types.VerdictLikelyVulnerable:
		return summaryLikelyVulnerable
	case types.VerdictLikelySafe:
		return summaryLikelySafe
	default:
		return summaryInconclusive
	}
}
