package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

const whirlpoolID = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"

type stubLedger struct {
	binary  []byte
	record  *types.AccountRecord
	fetches int
	queries int
}

func (s *stubLedger) FetchProgram(ctx context.Context, program address.Address, signer core.Signer) (*types.ProgramBinary, error) {
	s.fetches++
	return &types.ProgramBinary{Program: program, DataAccount: program, Loader: types.LoaderUpgradeable, Data: s.binary}, nil
}

func (s *stubLedger) QueryAccount(ctx context.Context, addr address.Address) (*types.AccountRecord, error) {
	s.queries++
	return s.record, nil
}

// useStubLedger swaps the ledger factory and records whether it was ever asked for a client.
func useStubLedger(t *testing.T, stub *stubLedger) (*config.RPCConfig, *bool) {
	t.Helper()
	var seen config.RPCConfig
	called := false
	original := newLedger
	newLedger = func(cfg config.RPCConfig, log *logger.Logger, tel core.Telemetry) (core.Ledger, error) {
		called = true
		seen = cfg
		return stub, nil
	}
	t.Cleanup(func() { newLedger = original })
	return &seen, &called
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRoot_RequiresExactlyOneArgument(t *testing.T) {
	_, called := useStubLedger(t, &stubLedger{})

	stdout, stderr, err := runCLI(t)
	require.Error(t, err)
	assert.Contains(t, stdout+stderr, "Usage:")

	_, _, err = runCLI(t, whirlpoolID, whirlpoolID)
	require.Error(t, err)
	assert.False(t, *called)
}

func TestRoot_InvalidAddressBeforeNetwork(t *testing.T) {
	stub := &stubLedger{}
	_, called := useStubLedger(t, stub)

	for _, arg := range []string{"not-an-address", "0OIl", "1111"} {
		_, _, err := runCLI(t, arg)
		require.Error(t, err, arg)
		assert.ErrorIs(t, err, address.ErrInvalidAddress)
	}
	assert.False(t, *called, "no ledger client may be created for invalid input")
	assert.Equal(t, 0, stub.fetches)
}

func TestRoot_LikelyVulnerable(t *testing.T) {
	stub := &stubLedger{binary: []byte("..anchor:idl..IdlCreateAccount..")}
	useStubLedger(t, stub)
	dir := t.TempDir()

	stdout, _, err := runCLI(t, "--staging-dir", dir, whirlpoolID)
	require.NoError(t, err)

	assert.Contains(t, stdout, "HqXLYaUXkfdGhWMuciBEN9MouqLu5wJYWdepP5TspmXj (bump 255)")
	assert.Contains(t, stdout, "2KFqE4RWoPVbvodo8vbggCFeHPS8TDvgpwp79ALMrcyn")
	assert.Contains(t, stdout, "LIKELY VULNERABLE")
	assert.Equal(t, 1, stub.queries)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged binary must be removed")
}

func TestRoot_Inconclusive(t *testing.T) {
	stub := &stubLedger{binary: []byte("native program")}
	useStubLedger(t, stub)

	stdout, _, err := runCLI(t, "--staging-dir", t.TempDir(), whirlpoolID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "INCONCLUSIVE")
	assert.Equal(t, 0, stub.queries)
}

func TestRoot_FlagsAndEnvironment(t *testing.T) {
	seen, _ := useStubLedger(t, &stubLedger{binary: []byte("x")})
	t.Setenv("IDLSCAN_RPC_URL", "https://rpc.example.org")
	t.Setenv("IDLSCAN_RPC_MAX_RETRIES", "2")

	_, _, err := runCLI(t, "--commitment", "confirmed", "--staging-dir", t.TempDir(), whirlpoolID)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", seen.Endpoint)
	assert.Equal(t, "confirmed", seen.Commitment)
	assert.Equal(t, 2, seen.MaxRetries)
	assert.Equal(t, config.Default().RPC.RetryDelay, seen.RetryDelay)
}

func TestRoot_InvalidConfiguration(t *testing.T) {
	_, called := useStubLedger(t, &stubLedger{})

	_, _, err := runCLI(t, "--commitment", "recent", whirlpoolID)
	require.Error(t, err)
	assert.False(t, *called)
}

func TestHistory(t *testing.T) {
	stub := &stubLedger{binary: []byte("..anchor:idl..IdlCreateAccount..")}
	useStubLedger(t, stub)
	dsn := filepath.Join(t.TempDir(), "history.db")

	_, _, err := runCLI(t, "--db-dsn", dsn, "--staging-dir", t.TempDir(), whirlpoolID)
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db-dsn", dsn, "history", whirlpoolID)
	require.NoError(t, err)
	assert.Contains(t, stdout, whirlpoolID)
	assert.Contains(t, stdout, "LIKELY VULNERABLE")

	stdout, _, err = runCLI(t, "--db-dsn", dsn, "history", "--verdict", "likely_safe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scans recorded")
}

func TestHistory_Errors(t *testing.T) {
	_, _, err := runCLI(t, "history")
	assert.ErrorContains(t, err, "not configured")

	dsn := filepath.Join(t.TempDir(), "history.db")
	_, _, err = runCLI(t, "--db-dsn", dsn, "history", "--verdict", "maybe")
	assert.ErrorContains(t, err, "unknown verdict")

	_, _, err = runCLI(t, "--db-dsn", dsn, "history", "bad-address")
	assert.ErrorIs(t, err, address.ErrInvalidAddress)
}

func TestConfigShow(t *testing.T) {
	_, called := useStubLedger(t, &stubLedger{})
	t.Setenv("IDLSCAN_DB_DSN", "postgres://user:secret@db/idlscan?sslmode=disable")

	stdout, _, err := runCLI(t, "--rpc-url", "http://127.0.0.1:8899", "--max-retries", "2", "config", "show")
	require.NoError(t, err)
	assert.False(t, *called)

	assert.Contains(t, stdout, "endpoint: http://127.0.0.1:8899")
	assert.Contains(t, stdout, "max_retries: 2")
	assert.Contains(t, stdout, "timeout: 30s")
	assert.Contains(t, stdout, "dsn: postg***sable")
	assert.NotContains(t, stdout, "secret")
}

func TestDBCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")

	stdout, _, err := runCLI(t, "--db-dsn", dsn, "db", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Schema version:   0")
	assert.Contains(t, stdout, "migrations pending")

	stdout, _, err = runCLI(t, "--db-dsn", dsn, "db", "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "up to date")

	stdout, _, err = runCLI(t, "--db-dsn", dsn, "db", "rollback", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rolled back migration 2")

	stdout, _, err = runCLI(t, "--db-dsn", dsn, "db", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Schema version:   1 (latest 2)")
	assert.Contains(t, stdout, "Pending:          1")
}

func TestDBCommands_Errors(t *testing.T) {
	_, _, err := runCLI(t, "db", "status")
	assert.ErrorContains(t, err, "not configured")

	dsn := filepath.Join(t.TempDir(), "history.db")
	_, _, err = runCLI(t, "--db-dsn", dsn, "db", "rollback", "two")
	assert.ErrorContains(t, err, "invalid migration version")

	_, _, err = runCLI(t, "--db-dsn", dsn, "db", "rollback", "99")
	assert.ErrorContains(t, err, "not found")
}
