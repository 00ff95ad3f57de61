package contract

import (
	"context"

	"github.com/ledgermart/ledgermart/pkg/fabric/gateway"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// SessionFunc opens a gateway session for one logical workflow.
type SessionFunc func(ctx context.Context) (*gateway.Session, error)

// PerCallClient opens a fresh session around every invocation and closes
// it before returning, so no gateway connection is shared across
// workflows. Connection setup cost is paid per call; long-running batch
// work should hold its own Session and use Client directly.
type PerCallClient struct {
	connect      SessionFunc
	contractName string
	logger       *logger.Logger
}

func NewPerCallClient(connect SessionFunc, contractName string, logger *logger.Logger) *PerCallClient {
	return &PerCallClient{
		connect:      connect,
		contractName: contractName,
		logger:       logger,
	}
}

func (p *PerCallClient) Submit(ctx context.Context, fn string, args ...string) (*TxResult, error) {
	session, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return NewClient(session, p.contractName, p.logger).Submit(ctx, fn, args...)
}

func (p *PerCallClient) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	session, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return NewClient(session, p.contractName, p.logger).Evaluate(ctx, fn, args...)
}
