package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggerConfig
		wantErr bool
	}{
		{
			name: "valid json config",
			config: config.LoggerConfig{
				Level:  "debug",
				Format: "json",
			},
			wantErr: false,
		},
		{
			name: "valid console config",
			config: config.LoggerConfig{
				Level:  "info",
				Format: "console",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: config.LoggerConfig{
				Level:  "invalid",
				Format: "json",
			},
			wantErr: true,
		},
		{
			name:    "empty config uses defaults",
			config:  config.LoggerConfig{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.Info("test info message")
	logger.Infow("test structured info", "key", "value", "number", 42)
	logger.Debugw("test structured debug", "key", "value")
	logger.Warnw("test structured warn", "key", "value")
	logger.Errorw("test structured error", "key", "value")
}

func TestStartAndFinishOperation(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()

	newCtx, span := logger.StartOperation(ctx, "test.operation",
		"key1", "value1",
		"key2", 123,
	)

	assert.NotNil(t, newCtx)
	assert.NotNil(t, span)

	logger.FinishOperation(newCtx, span, "test.operation", start, nil)
	logger.FinishOperation(newCtx, span, "test.operation", start, errors.New("boom"))
}

func TestFieldLoggers(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	assert.NotNil(t, logger.WithFields("component", "test", "version", "1.0"))
	assert.NotNil(t, logger.WithComponent("ledger"))
	assert.NotNil(t, logger.WithProgram("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"))
	assert.NotNil(t, logger.WithScanID("scan-12345"))
}

func TestDomainLoggers(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := context.Background()
	logger.LogVerdict(ctx, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "likely_vulnerable", "high", map[string]interface{}{
		"idl_account": "4nmzuuebvZ9EVghi2khvz9SyxUNvuXXdAzWtG5N7avYf",
	})
	logger.LogVerdict(ctx, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "inconclusive", "info", nil)
	logger.LogRPCRequest(ctx, "getAccountInfo", 1, 12*time.Millisecond, nil)
	logger.LogRPCRequest(ctx, "getAccountInfo", 2, 12*time.Millisecond, errors.New("timeout"))
	logger.LogDatabaseOperation(ctx, "insert", "scan_reports", 1, time.Millisecond)
	logger.LogDuration(ctx, "scan", time.Now())
	logger.LogError(ctx, nil, "noop")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)

	ctx, span := logger.StartOperation(context.Background(), "nop.operation")
	logger.FinishOperation(ctx, span, "nop.operation", time.Now(), nil)
	logger.Infow("discarded", "key", "value")
}

func TestLoggerConcurrency(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Infow("concurrent log", "goroutine", id)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
