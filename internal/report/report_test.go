package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

func init() {
	color.NoColor = true
}

var (
	program = address.MustParse("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	signer  = address.MustParse("HqXLYaUXkfdGhWMuciBEN9MouqLu5wJYWdepP5TspmXj")
	idl     = address.MustParse("2KFqE4RWoPVbvodo8vbggCFeHPS8TDvgpwp79ALMrcyn")
)

func vulnerableReport() *types.ScanReport {
	return &types.ScanReport{
		ID:                  "scan-1-abcdef01",
		Program:             program,
		Verdict:             types.VerdictLikelyVulnerable,
		Summary:             "predictable account not yet claimed; an attacker could claim it first",
		BinarySize:          1024,
		BinarySHA256:        "deadbeef",
		BinaryMMH3:          "-42",
		Loader:              types.LoaderUpgradeable,
		HasAnchorIDL:        true,
		HasIdlCreateAccount: true,
		Derived:             true,
		Signer:              signer,
		Bump:                255,
		IDLAccount:          idl,
		CompletedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRender_Vulnerable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, vulnerableReport()))

	out := buf.String()
	assert.Equal(t, 8, strings.Count(out, "\n"))
	assert.Contains(t, out, "1024 bytes (bpf_upgradeable, sha256 deadbeef, mmh3 -42)")
	assert.Contains(t, out, "anchor:idl found")
	assert.Contains(t, out, "IdlCreateAccount found")
	assert.Contains(t, out, signer.String()+" (bump 255)")
	assert.Contains(t, out, "IDL account:  "+idl.String())
	assert.Contains(t, out, "does not exist")
	assert.Contains(t, out, "LIKELY VULNERABLE [HIGH]")
}

func TestRender_Safe(t *testing.T) {
	r := vulnerableReport()
	r.Verdict = types.VerdictLikelySafe
	r.Account = &types.AccountRecord{Address: idl, Exists: true, Owner: program, Lamports: 7, DataLen: 99}
	r.OwnerMatchesProgram = true

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))
	assert.Contains(t, buf.String(), "exists, owner "+program.String()+" (owned by program), 7 lamports, 99 bytes")
	assert.Contains(t, buf.String(), "LIKELY SAFE [INFO]")
}

func TestRender_Inconclusive(t *testing.T) {
	r := &types.ScanReport{
		Program:      program,
		Verdict:      types.VerdictInconclusive,
		Summary:      "no IDL tooling detected; not applicable",
		HasAnchorIDL: true,
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "IdlCreateAccount not found")
	assert.Equal(t, 3, strings.Count(out, "skipped (IDL markers absent)"))
	assert.Contains(t, out, "INCONCLUSIVE [INFO] no IDL tooling detected")
}

func TestRender_Nil(t *testing.T) {
	assert.Error(t, Render(&bytes.Buffer{}, nil))
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("closed pipe") }

func TestRender_WriteError(t *testing.T) {
	assert.Error(t, Render(failingWriter{}, vulnerableReport()))
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHistory(&buf, nil))
	assert.Equal(t, "No scans recorded\n", buf.String())

	buf.Reset()
	inconclusive := &types.ScanReport{ID: "scan-2", Program: program, Verdict: types.VerdictInconclusive}
	require.NoError(t, RenderHistory(&buf, []*types.ScanReport{vulnerableReport(), inconclusive}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "2026-01-02 03:04:05")
	assert.Contains(t, lines[0], idl.String())
	assert.Contains(t, lines[1], "INCONCLUSIVE")
	assert.Contains(t, lines[1], "  -  scan-2")
}
