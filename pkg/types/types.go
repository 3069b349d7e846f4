package types

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
)

type Severity string

const (
	SeverityHigh Severity = "high"
	SeverityInfo Severity = "info"
)

type Verdict string

const (
	VerdictInconclusive     Verdict = "inconclusive"
	VerdictLikelyVulnerable Verdict = "likely_vulnerable"
	VerdictLikelySafe       Verdict = "likely_safe"
)

// Severity maps a verdict onto the severity used for logging and storage.
func (v Verdict) Severity() Severity {
	if v == VerdictLikelyVulnerable {
		return SeverityHigh
	}
	return SeverityInfo
}

type Loader string

const (
	LoaderUpgradeable Loader = "bpf_upgradeable"
	LoaderV4          Loader = "loader_v4"
	LoaderLegacy      Loader = "bpf_legacy"
)

// ProgramBinary is the executable image of a deployed program.
type ProgramBinary struct {
	Program     address.Address
	DataAccount address.Address // account the bytes were read from; differs from Program for upgradeable programs
	Loader      Loader
	Data        []byte
}

func (b *ProgramBinary) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// AccountRecord is a live snapshot of an account.
type AccountRecord struct {
	Address    address.Address `json:"address"`
	Exists     bool            `json:"exists"`
	Owner      address.Address `json:"owner"`
	Lamports   uint64          `json:"lamports"`
	DataLen    int             `json:"data_len"`
	Executable bool            `json:"executable"`
}

// ScanReport is the evidence behind a verdict.
type ScanReport struct {
	ID                  string          `json:"id"`
	Program             address.Address `json:"program"`
	Verdict             Verdict         `json:"verdict"`
	Summary             string          `json:"summary"`
	BinarySize          int             `json:"binary_size"`
	BinarySHA256        string          `json:"binary_sha256"`
	BinaryMMH3          string          `json:"binary_mmh3"`
	Loader              Loader          `json:"loader"`
	HasAnchorIDL        bool            `json:"has_anchor_idl"`
	HasIdlCreateAccount bool            `json:"has_idl_create_account"`
	Derived             bool            `json:"derived"`
	Signer              address.Address `json:"signer"`
	Bump                uint8           `json:"bump"`
	IDLAccount          address.Address `json:"idl_account"`
	Account             *AccountRecord  `json:"account,omitempty"`
	OwnerMatchesProgram bool            `json:"owner_matches_program"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         time.Time       `json:"completed_at"`
}
