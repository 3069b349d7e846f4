// Package report prints scan reports for humans, one line per pipeline stage.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/pattern"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

func colorFound(found bool) string {
	if found {
		return color.New(color.FgGreen).Sprint("found")
	}
	return color.New(color.FgYellow).Sprint("not found")
}

func colorVerdict(v types.Verdict) string {
	label := strings.ToUpper(strings.ReplaceAll(string(v), "_", " "))
	switch v {
	case types.VerdictLikelyVulnerable:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case types.VerdictLikelySafe:
		return color.New(color.FgGreen).Sprint(label)
	default:
		return color.New(color.FgWhite).Sprint(label)
	}
}

func colorSeverity(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case types.SeverityInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return string(s)
	}
}

// Render writes r to w.
func Render(w io.Writer, r *types.ScanReport) error {
	if r == nil {
		return fmt.Errorf("nil report")
	}

	lines := []string{
		fmt.Sprintf("Program:      %s", r.Program),
		fmt.Sprintf("Binary:       %d bytes (%s, sha256 %s, mmh3 %s)", r.BinarySize, r.Loader, r.BinarySHA256, r.BinaryMMH3),
		fmt.Sprintf("Marker:       %s %s", pattern.AnchorIDLSeed, colorFound(r.HasAnchorIDL)),
		fmt.Sprintf("Marker:       %s %s", pattern.IdlCreateAccount, colorFound(r.HasIdlCreateAccount)),
	}

	if r.Derived {
		lines = append(lines,
			fmt.Sprintf("Signer:       %s (bump %d)", r.Signer, r.Bump),
			fmt.Sprintf("IDL account:  %s", r.IDLAccount),
			"Account:      "+describeAccount(r),
		)
	} else {
		skipped := color.New(color.Faint).Sprint("skipped (IDL markers absent)")
		lines = append(lines,
			"Signer:       "+skipped,
			"IDL account:  "+skipped,
			"Account:      "+skipped,
		)
	}

	lines = append(lines, fmt.Sprintf("Verdict:      %s [%s] %s", colorVerdict(r.Verdict), colorSeverity(r.Verdict.Severity()), r.Summary))

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func describeAccount(r *types.ScanReport) string {
	if r.Account == nil {
		return color.New(color.FgRed).Sprint("does not exist")
	}
	owner := "owner differs from program"
	if r.OwnerMatchesProgram {
		owner = "owned by program"
	}
	return fmt.Sprintf("exists, owner %s (%s), %d lamports, %d bytes",
		r.Account.Owner, owner, r.Account.Lamports, r.Account.DataLen)
}

// RenderHistory writes one summary line per stored report.
func RenderHistory(w io.Writer, reports []*types.ScanReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded")
		return err
	}
	for _, r := range reports {
		idl := "-"
		if r.Derived {
			idl = r.IDLAccount.String()
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %-20s  %s  %s\n",
			r.CompletedAt.Format("2006-01-02 15:04:05"),
			r.Program,
			colorVerdict(r.Verdict),
			idl,
			r.ID,
		); err != nil {
			return err
		}
	}
	return nil
}
