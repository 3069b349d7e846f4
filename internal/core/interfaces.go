package core

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

// Signer is throwaway signing material handed to the retrieval call. It never authorizes
// spending or state changes.
type Signer interface {
	PublicKey() address.Address
}

// Ledger is the capability the scan pipeline needs from the network.
type Ledger interface {
	// FetchProgram returns the executable bytes of program.
	FetchProgram(ctx context.Context, program address.Address, signer Signer) (*types.ProgramBinary, error)
	// QueryAccount returns the account at addr, or nil when no account exists there.
	QueryAccount(ctx context.Context, addr address.Address) (*types.AccountRecord, error)
}

type ResultStore interface {
	SaveReport(ctx context.Context, report *types.ScanReport) error
	ListReports(ctx context.Context, filter ReportFilter) ([]*types.ScanReport, error)
	Close() error
}

type ReportFilter struct {
	Program string
	Verdict types.Verdict
	Limit   int
}

type Telemetry interface {
	RecordScan(verdict types.Verdict, duration float64, success bool)
	RecordRPCCall(method string, success bool)
	Close() error
}
