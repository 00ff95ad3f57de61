package contract

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	gatewaypb "github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/lithammer/shortuuid/v4"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/fabric/gateway"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

// TxResult carries the outcome of a committed transaction.
type TxResult struct {
	TxID    string
	Payload []byte
}

// Invoker is the ledger access surface the order services depend on.
// Submit routes through endorsement and ordering and blocks until commit;
// Evaluate is a peer-local read of the latest committed state that peer
// has seen, which may lag the head during a partition.
type Invoker interface {
	Submit(ctx context.Context, fn string, args ...string) (*TxResult, error)
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
}

// Client invokes one named contract through an open gateway session.
type Client struct {
	contract      *client.Contract
	endorsingOrgs []string
	logger        *logger.Logger
}

// NewClient binds a transaction client to a contract within the session's
// channel. The session stays owned by the caller; closing it invalidates
// the client.
func NewClient(session *gateway.Session, contractName string, logger *logger.Logger) *Client {
	return &Client{
		contract:      session.Contract(contractName),
		endorsingOrgs: session.EndorsingOrganizations(),
		logger:        logger,
	}
}

func (c *Client) proposalOptions(args []string) []client.ProposalOption {
	options := []client.ProposalOption{client.WithArguments(args...)}
	if len(c.endorsingOrgs) > 0 {
		options = append(options, client.WithEndorsingOrganizations(c.endorsingOrgs...))
	}
	return options
}

// Submit endorses, orders and waits for commit of a state-changing
// transaction. Submission is not idempotent: after a TimeoutError the
// outcome is unknown and the caller must re-read state before retrying
// with fresh arguments.
func (c *Client) Submit(ctx context.Context, fn string, args ...string) (*TxResult, error) {
	// Correlates the endorse/submit/commit log lines of one call; the
	// ledger transaction id is unknown until endorsement.
	callID := shortuuid.New()
	c.logger.Debug("submitting transaction", "call", callID, "function", fn)

	proposal, err := c.contract.NewProposal(fn, c.proposalOptions(args)...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create proposal", err, map[string]interface{}{
			"function": fn,
		})
	}

	transaction, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return nil, c.classifyEndorse(fn, err)
	}

	commit, err := transaction.SubmitWithContext(ctx)
	if err != nil {
		return nil, c.classifySubmit(fn, transaction.TransactionID(), err)
	}

	status, err := commit.StatusWithContext(ctx)
	if err != nil {
		return nil, c.classifyCommitStatus(fn, commit.TransactionID(), err)
	}
	if !status.Successful {
		return nil, apperrors.NewOrderingError("transaction was invalidated at commit", nil, map[string]interface{}{
			"function":       fn,
			"txId":           status.TransactionID,
			"validationCode": status.Code.String(),
			"blockNumber":    status.BlockNumber,
		})
	}

	c.logger.Info("transaction committed",
		"call", callID,
		"function", fn,
		"txId", status.TransactionID,
		"blockNumber", status.BlockNumber,
	)

	return &TxResult{
		TxID:    status.TransactionID,
		Payload: transaction.Result(),
	}, nil
}

// Evaluate runs a read-only query against the session's peer.
func (c *Client) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	proposal, err := c.contract.NewProposal(fn, c.proposalOptions(args)...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create proposal", err, map[string]interface{}{
			"function": fn,
		})
	}

	result, err := proposal.EvaluateWithContext(ctx)
	if err != nil {
		return nil, c.classifyEvaluate(fn, err)
	}
	return result, nil
}

func (c *Client) classifyEvaluate(fn string, err error) error {
	if isDeadline(nil, err) {
		return apperrors.NewTimeoutError("query deadline exceeded", err, map[string]interface{}{
			"function": fn,
		})
	}
	if grpcstatus.Code(err) == codes.Unavailable {
		return apperrors.NewConnectionError("query failed", err, map[string]interface{}{
			"function": fn,
			"details":  endpointDetails(err),
		})
	}
	// The chaincode's own rejection comes back in the status message.
	// Fabric contracts report missing keys as "<key> does not exist".
	msg := strings.ToLower(grpcstatus.Convert(err).Message())
	if strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found") {
		return apperrors.NewNotFoundError("asset not found on ledger", map[string]interface{}{
			"function": fn,
			"cause":    err.Error(),
		})
	}
	return apperrors.NewEndorsementError("query rejected by peer", err, map[string]interface{}{
		"function": fn,
		"details":  endpointDetails(err),
	})
}

func (c *Client) classifyEndorse(fn string, err error) error {
	if isDeadline(nil, err) {
		return apperrors.NewTimeoutError("endorsement deadline exceeded", err, map[string]interface{}{
			"function": fn,
		})
	}
	var endorseErr *client.EndorseError
	if errors.As(err, &endorseErr) {
		return apperrors.NewEndorsementError("transaction endorsement failed", err, map[string]interface{}{
			"function": fn,
			"txId":     endorseErr.TransactionID,
			"details":  endpointDetails(err),
		})
	}
	return apperrors.NewConnectionError("endorsement request failed", err, map[string]interface{}{
		"function": fn,
	})
}

func (c *Client) classifySubmit(fn, txID string, err error) error {
	if isDeadline(nil, err) {
		// The transaction may still commit; only a state re-read can tell.
		return apperrors.NewTimeoutError("ordering submission deadline exceeded", err, map[string]interface{}{
			"function": fn,
			"txId":     txID,
		})
	}
	return apperrors.NewOrderingError("failed to submit transaction to ordering service", err, map[string]interface{}{
		"function": fn,
		"txId":     txID,
		"details":  endpointDetails(err),
	})
}

func (c *Client) classifyCommitStatus(fn, txID string, err error) error {
	if isDeadline(nil, err) {
		return apperrors.NewTimeoutError("commit status deadline exceeded", err, map[string]interface{}{
			"function": fn,
			"txId":     txID,
		})
	}
	return apperrors.NewOrderingError("failed to obtain transaction commit status", err, map[string]interface{}{
		"function": fn,
		"txId":     txID,
	})
}

func isDeadline(ctx context.Context, err error) bool {
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return grpcstatus.Code(err) == codes.DeadlineExceeded
}

// endpointDetails extracts the per-peer failure detail the gateway embeds
// in its gRPC status, so a rejection names the endpoint and organization
// without re-running in verbose mode.
func endpointDetails(err error) []map[string]interface{} {
	var details []map[string]interface{}
	for _, detail := range grpcstatus.Convert(err).Details() {
		if d, ok := detail.(*gatewaypb.ErrorDetail); ok {
			details = append(details, map[string]interface{}{
				"address": d.GetAddress(),
				"mspId":   d.GetMspId(),
				"message": d.GetMessage(),
			})
		}
	}
	return details
}
