package store

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermart/ledgermart/pkg/db"
	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/orders/service"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))
	return NewSQLStore(database)
}

func TestSubOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, "order_123", service.PaymentCOD, true))
	require.NoError(t, s.SaveSubOrder(ctx, &service.SubOrder{
		AssetKey:       "order_123_1",
		OrderID:        "order_123",
		Seq:            1,
		SellerOrg:      "SellerOneOrgMSP",
		Status:         service.StatusCreated,
		PaymentMethod:  service.PaymentCOD,
		BlockchainData: []byte(`{"status":"CREATED"}`),
	}))

	sub, err := s.GetSubOrder(ctx, "order_123_1")
	require.NoError(t, err)
	assert.Equal(t, "order_123", sub.OrderID)
	assert.Equal(t, service.StatusCreated, sub.Status)
	assert.Equal(t, service.PaymentCOD, sub.PaymentMethod)
	assert.Empty(t, sub.CODStatus)
	assert.JSONEq(t, `{"status":"CREATED"}`, string(sub.BlockchainData))
}

func TestGetSubOrderMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSubOrder(context.Background(), "order_999_1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.NotFoundError))
}

func TestListSubOrdersBySeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, "order_123", service.PaymentPrepaid, true))
	for seq, seller := range map[int]string{2: "SellerTwoOrgMSP", 1: "SellerOneOrgMSP"} {
		require.NoError(t, s.SaveSubOrder(ctx, &service.SubOrder{
			AssetKey:      service.AssetKey("order_123", seq),
			OrderID:       "order_123",
			Seq:           seq,
			SellerOrg:     seller,
			Status:        service.StatusCreated,
			PaymentMethod: service.PaymentPrepaid,
		}))
	}

	subs, err := s.ListSubOrders(ctx, "order_123")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, 1, subs[0].Seq)
	assert.Equal(t, 2, subs[1].Seq)
}

func TestUpdateProjection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrder(ctx, "order_123", service.PaymentCOD, false))
	require.NoError(t, s.SaveSubOrder(ctx, &service.SubOrder{
		AssetKey:      "order_123_1",
		OrderID:       "order_123",
		Seq:           1,
		SellerOrg:     "SellerOneOrgMSP",
		Status:        service.StatusCreated,
		PaymentMethod: service.PaymentCOD,
	}))

	require.NoError(t, s.UpdateProjection(ctx, "order_123_1", service.StatusPaid, "COLLECTED", []byte(`{"status":"PAID"}`)))

	sub, err := s.GetSubOrder(ctx, "order_123_1")
	require.NoError(t, err)
	assert.Equal(t, service.StatusPaid, sub.Status)
	assert.Equal(t, "COLLECTED", sub.CODStatus)
	assert.JSONEq(t, `{"status":"PAID"}`, string(sub.BlockchainData))
}
