// Package ledger reads program binaries and account state from a Solana JSON-RPC node.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

const methodGetAccountInfo = "getAccountInfo"

// Client implements core.Ledger on top of a JSON-RPC endpoint. It issues one request at a time.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	limiter    *ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
	telemetry  core.Telemetry
	logger     *logger.Logger
}

var _ core.Ledger = (*Client)(nil)

func NewClient(cfg config.RPCConfig, log *logger.Logger, tel core.Telemetry) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid rpc endpoint %q: scheme must be http or https", cfg.Endpoint)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}

	commitment := cfg.Commitment
	if commitment == "" {
		commitment = config.DefaultCommitment
	}

	httpClient := httpclient.NewRPCClient(cfg.Timeout, cfg.BlockPrivate)
	rpcClient := jsonrpc.NewClientWithOpts(cfg.Endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient: httpClient,
	})

	limits := ratelimit.DefaultConfig()
	if cfg.RequestsPerSecond > 0 {
		limits.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.BurstSize > 0 {
		limits.BurstSize = cfg.BurstSize
	}
	limits.MinInterval = cfg.MinInterval

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		rpc:        rpc.NewWithCustomRPCClient(rpcClient),
		commitment: rpc.CommitmentType(commitment),
		limiter:    ratelimit.NewLimiter(limits),
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
		telemetry:  tel,
		logger:     log.WithComponent("ledger"),
	}, nil
}

// FetchProgram returns the executable bytes of program as the owning loader stores them.
func (c *Client) FetchProgram(ctx context.Context, program address.Address, signer core.Signer) (bin *types.ProgramBinary, err error) {
	fields := []interface{}{"program", program.String()}
	if signer != nil {
		fields = append(fields, "signer", signer.PublicKey().String())
	}
	ctx, span := c.logger.StartOperation(ctx, "ledger.FetchProgram", fields...)
	start := time.Now()
	defer func() {
		stats := c.limiter.Stats()
		c.logger.FinishOperation(ctx, span, "ledger.FetchProgram", start, err,
			"binary_size", bin.Size(),
			"rpc_requests", stats.Requests,
			"rate_limited_for", stats.Waited,
		)
	}()

	bin, err = c.fetchProgram(ctx, program)
	if err != nil {
		return nil, &RetrievalError{Program: program, Err: err}
	}
	return bin, nil
}

func (c *Client) fetchProgram(ctx context.Context, program address.Address) (*types.ProgramBinary, error) {
	account, err := c.getAccount(ctx, program)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if !account.Executable {
		return nil, ErrNotExecutable
	}

	owner := address.Address(account.Owner)
	kind, ok := loaderKind(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLoader, owner)
	}

	data := accountData(account)
	bin := &types.ProgramBinary{Program: program, DataAccount: program, Loader: kind}

	switch kind {
	case types.LoaderUpgradeable:
		dataAddr, err := programDataAddress(data)
		if err != nil {
			return nil, err
		}
		dataAccount, err := c.getAccount(ctx, dataAddr)
		if err != nil {
			return nil, err
		}
		if dataAccount == nil {
			return nil, fmt.Errorf("%w: programdata account %s does not exist", ErrMalformedProgram, dataAddr)
		}
		bin.DataAccount = dataAddr
		bin.Data, err = programDataBinary(accountData(dataAccount))
		if err != nil {
			return nil, err
		}
	case types.LoaderV4:
		bin.Data, err = loaderV4Binary(data)
		if err != nil {
			return nil, err
		}
	default:
		bin.Data = data
	}

	return bin, nil
}

// QueryAccount looks up the account at addr. A missing account yields nil, nil.
func (c *Client) QueryAccount(ctx context.Context, addr address.Address) (*types.AccountRecord, error) {
	account, err := c.getAccount(ctx, addr)
	if err != nil {
		return nil, &QueryError{Address: addr, Err: err}
	}
	if account == nil {
		return nil, nil
	}

	return &types.AccountRecord{
		Address:    addr,
		Exists:     true,
		Owner:      address.Address(account.Owner),
		Lamports:   account.Lamports,
		DataLen:    len(accountData(account)),
		Executable: account.Executable,
	}, nil
}

// getAccount performs getAccountInfo with rate limiting and, when configured, bounded retries.
// Absence is reported as a nil account and is never retried.
func (c *Client) getAccount(ctx context.Context, addr address.Address) (*rpc.Account, error) {
	var account *rpc.Account
	attempt := 0

	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		out, err := c.rpc.GetAccountInfoWithOpts(ctx, solana.PublicKeyFromBytes(addr.Bytes()), &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			out, err = nil, nil
		}

		c.logger.LogRPCRequest(ctx, methodGetAccountInfo, attempt, time.Since(start), err, "account", addr.String())
		c.telemetry.RecordRPCCall(methodGetAccountInfo, err == nil)

		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if out != nil {
			account = out.Value
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if c.retryDelay > 0 {
		b.InitialInterval = c.retryDelay
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return account, nil
}

func accountData(account *rpc.Account) []byte {
	if account == nil || account.Data == nil {
		return nil
	}
	return account.Data.GetBinary()
}
