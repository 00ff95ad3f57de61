package contract

import (
	"context"
	"testing"

	gatewaypb "github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/logger"
)

func testClient() *Client {
	return &Client{logger: logger.NewDefault()}
}

func TestClassifyEvaluateMissingAsset(t *testing.T) {
	err := grpcstatus.New(codes.Aborted, "evaluate call to endorser returned error: the asset order_9_1 does not exist").Err()

	classified := testClient().classifyEvaluate("ReadOrder", err)

	assert.True(t, apperrors.IsType(classified, apperrors.NotFoundError))
}

func TestClassifyEvaluateUnavailablePeer(t *testing.T) {
	err := grpcstatus.New(codes.Unavailable, "connection refused").Err()

	classified := testClient().classifyEvaluate("ReadOrder", err)

	assert.True(t, apperrors.IsType(classified, apperrors.ConnectionError))
}

func TestClassifyEvaluateDeadline(t *testing.T) {
	classified := testClient().classifyEvaluate("ReadOrder", context.DeadlineExceeded)

	assert.True(t, apperrors.IsType(classified, apperrors.TimeoutError))
}

func TestClassifyEvaluateChaincodeRejection(t *testing.T) {
	err := grpcstatus.New(codes.Aborted, "chaincode response 500, payment method mismatch").Err()

	classified := testClient().classifyEvaluate("ReadOrder", err)

	assert.True(t, apperrors.IsType(classified, apperrors.EndorsementError))
}

func TestClassifySubmitDeadlineKeepsTxID(t *testing.T) {
	classified := testClient().classifySubmit("ConfirmPayment", "tx-7", context.DeadlineExceeded)

	require.True(t, apperrors.IsType(classified, apperrors.TimeoutError))
	var appErr *apperrors.AppError
	require.ErrorAs(t, classified, &appErr)
	assert.Equal(t, "tx-7", appErr.Details["txId"])
}

func TestEndpointDetails(t *testing.T) {
	st := grpcstatus.New(codes.Aborted, "endorsement failed")
	withDetails, err := st.WithDetails(&gatewaypb.ErrorDetail{
		Address: "peer0.seller-a.example.com:7051",
		MspId:   "SellerAOrgMSP",
		Message: "chaincode response 500, order already finalized",
	})
	require.NoError(t, err)

	details := endpointDetails(withDetails.Err())

	require.Len(t, details, 1)
	assert.Equal(t, "SellerAOrgMSP", details[0]["mspId"])
	assert.Equal(t, "peer0.seller-a.example.com:7051", details[0]["address"])
}

func TestIsDeadline(t *testing.T) {
	assert.True(t, isDeadline(nil, context.DeadlineExceeded))
	assert.True(t, isDeadline(nil, grpcstatus.New(codes.DeadlineExceeded, "deadline exceeded").Err()))
	assert.False(t, isDeadline(nil, grpcstatus.New(codes.Unavailable, "connection refused").Err()))
}
