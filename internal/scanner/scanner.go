// Package scanner runs the IDL squatting check against one program: retrieve the binary, stage
// it, scan it for Anchor IDL markers, derive the IDL account and look it up.
package scanner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/ledger"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/progress"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/staging"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/verdict"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/fingerprint"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/pattern"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

// Stage names, in pipeline order.
const (
	StageRetrieve = "retrieve"
	StageStage    = "stage"
	StageScan     = "scan"
	StageDerive   = "derive"
	StageQuery    = "query"
	StageClassify = "classify"
)

// Scanner is safe to reuse across runs but performs each run sequentially.
type Scanner struct {
	ledger      core.Ledger
	stager      *staging.Stager
	markers     pattern.MarkerSet
	store       core.ResultStore
	telemetry   core.Telemetry
	logger      *logger.Logger
	newSigner   func() (core.Signer, error)
	progressOut io.Writer
}

type Option func(*Scanner)

// WithStore persists every completed report. Save failures are logged and do not fail the scan.
func WithStore(store core.ResultStore) Option {
	return func(s *Scanner) { s.store = store }
}

func WithTelemetry(tel core.Telemetry) Option {
	return func(s *Scanner) { s.telemetry = tel }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) { s.logger = log }
}

func WithSignerFactory(fn func() (core.Signer, error)) Option {
	return func(s *Scanner) { s.newSigner = fn }
}

// WithProgress renders a progress bar for each run on w.
func WithProgress(w io.Writer) Option {
	return func(s *Scanner) { s.progressOut = w }
}

func New(l core.Ledger, stager *staging.Stager, opts ...Option) *Scanner {
	s := &Scanner{
		ledger:    l,
		stager:    stager,
		markers:   pattern.DefaultMarkers(),
		telemetry: telemetry.NewNoop(),
		logger:    logger.NewNop(),
		newSigner: func() (core.Signer, error) {
			return ledger.NewEphemeralSigner()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scanner")
	return s
}

func newTracker(w io.Writer) *progress.Tracker {
	tr := progress.New(w, w != nil)
	tr.AddPhase(StageRetrieve, "Retrieving program binary")
	tr.AddPhase(StageStage, "Staging binary")
	tr.AddPhase(StageScan, "Scanning for IDL markers")
	tr.AddPhase(StageDerive, "Deriving IDL account")
	tr.AddPhase(StageQuery, "Querying IDL account")
	tr.AddPhase(StageClassify, "Classifying")
	return tr
}

// Scan runs the full pipeline for program. Derivation and the account query only happen when
// every marker is present. The staged binary is removed on every return path once staging
// has succeeded.
func (s *Scanner) Scan(ctx context.Context, program address.Address) (report *types.ScanReport, err error) {
	start := time.Now()
	scanID := fmt.Sprintf("scan-%d-%s", start.Unix(), uuid.New().String()[:8])
	log := s.logger.WithScanID(scanID).WithProgram(program.String())

	ctx, span := log.StartOperation(ctx, "scanner.Scan")
	tracker := newTracker(s.progressOut)
	stage := ""

	defer func() {
		log.FinishOperation(ctx, span, "scanner.Scan", start, err)
		outcome := types.Verdict("")
		if report != nil {
			outcome = report.Verdict
		}
		s.telemetry.RecordScan(outcome, time.Since(start).Seconds(), err == nil)
		if err != nil {
			tracker.FailPhase(stage, err)
			log.LogError(ctx, err, "scanner.Scan", "stage", stage)
		} else {
			tracker.Complete()
		}
		for _, p := range tracker.Phases() {
			log.Debugw("Stage finished",
				"stage", p.Name,
				"status", p.Status.String(),
				"duration_ms", p.EndTime.Sub(p.StartTime).Milliseconds(),
			)
		}
	}()

	report = &types.ScanReport{
		ID:        scanID,
		Program:   program,
		StartedAt: start,
	}

	stage = StageRetrieve
	tracker.StartPhase(stage)
	signer, err := s.newSigner()
	if err != nil {
		return nil, err
	}
	bin, err := s.ledger.FetchProgram(ctx, program, signer)
	if err != nil {
		return nil, fmt.Errorf("binary retrieval failed: %w", err)
	}
	tracker.CompletePhase(stage)

	stage = StageStage
	tracker.StartPhase(stage)
	artifact, err := s.stager.Stage(program, bin)
	if err != nil {
		return nil, fmt.Errorf("staging failed: %w", err)
	}
	defer func() {
		if rmErr := artifact.Remove(); rmErr != nil {
			log.Warnw("Failed to remove staged binary", "path", artifact.Path(), "error", rmErr)
		}
	}()
	data, err := artifact.Read()
	if err != nil {
		return nil, fmt.Errorf("staging failed: %w", err)
	}
	if len(data) != artifact.Size() {
		return nil, fmt.Errorf("staging failed: read back %d of %d bytes", len(data), artifact.Size())
	}
	tracker.CompletePhase(stage)

	fp := fingerprint.Compute(data)
	report.Loader = bin.Loader
	report.BinarySize = fp.Size
	report.BinarySHA256 = fp.SHA256
	report.BinaryMMH3 = fp.MMH3
	log.Infow("Program binary staged",
		"loader", bin.Loader,
		"data_account", bin.DataAccount.String(),
		"size", fp.Size,
		"fingerprint", fp.Short(),
	)

	stage = StageScan
	tracker.StartPhase(stage)
	markers := pattern.Scan(data, s.markers)
	report.HasAnchorIDL = markers.Found(pattern.AnchorIDLSeed)
	report.HasIdlCreateAccount = markers.Found(pattern.IdlCreateAccount)
	tracker.CompletePhase(stage)

	if markers.All() {
		stage = StageDerive
		tracker.StartPhase(stage)
		signerAddr, bump, err := address.FindProgramAddress([][]byte{}, program)
		if err != nil {
			return nil, fmt.Errorf("signer derivation failed: %w", err)
		}
		idlAccount, err := address.CreateWithSeed(signerAddr, pattern.AnchorIDLSeed, program)
		if err != nil {
			return nil, fmt.Errorf("IDL account derivation failed: %w", err)
		}
		report.Derived = true
		report.Signer = signerAddr
		report.Bump = bump
		report.IDLAccount = idlAccount
		tracker.CompletePhase(stage)

		stage = StageQuery
		tracker.StartPhase(stage)
		record, err := s.ledger.QueryAccount(ctx, idlAccount)
		if err != nil {
			return nil, fmt.Errorf("IDL account query failed: %w", err)
		}
		report.Account = record
		if record != nil {
			report.OwnerMatchesProgram = record.Owner == program
		}
		tracker.CompletePhase(stage)
	} else {
		tracker.SkipPhase(StageDerive)
		tracker.SkipPhase(StageQuery)
	}

	stage = StageClassify
	tracker.StartPhase(stage)
	report.Verdict = verdict.Evaluate(markers, report.Account)
	report.Summary = verdict.Summary(report.Verdict)
	report.CompletedAt = time.Now()
	tracker.CompletePhase(stage)

	log.LogVerdict(ctx, program.String(), string(report.Verdict), string(report.Verdict.Severity()), map[string]interface{}{
		"idl_account": report.IDLAccount.String(),
		"derived":     report.Derived,
	})

	if s.store != nil {
		if saveErr := s.store.SaveReport(ctx, report); saveErr != nil {
			log.LogError(ctx, saveErr, "scanner.SaveReport")
		}
	}

	return report, nil
}
