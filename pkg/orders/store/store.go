package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
	"github.com/ledgermart/ledgermart/pkg/orders/service"
)

// SQLStore persists the relational projection of orders and sub-orders.
// The blockchain_data column caches the last ledger snapshot for fast
// listing; it is refreshed lazily and never consulted for payment
// decisions.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) SaveOrder(ctx context.Context, orderID string, method service.PaymentMethod, isSplit bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, payment_method, is_split)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payment_method = excluded.payment_method,
			is_split = excluded.is_split,
			updated_at = CURRENT_TIMESTAMP`,
		orderID, string(method), isSplit,
	)
	if err != nil {
		return apperrors.NewDatabaseError("failed to save order", err, map[string]interface{}{
			"orderId": orderID,
		})
	}
	return nil
}

func (s *SQLStore) SaveSubOrder(ctx context.Context, sub *service.SubOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sub_orders (asset_key, order_id, seq, seller_org, status, payment_method, cod_status, blockchain_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_key) DO UPDATE SET
			status = excluded.status,
			cod_status = excluded.cod_status,
			blockchain_data = excluded.blockchain_data,
			updated_at = CURRENT_TIMESTAMP`,
		sub.AssetKey, sub.OrderID, sub.Seq, sub.SellerOrg,
		string(sub.Status), string(sub.PaymentMethod),
		nullable(sub.CODStatus), nullableBytes(sub.BlockchainData),
	)
	if err != nil {
		return apperrors.NewDatabaseError("failed to save sub-order", err, map[string]interface{}{
			"assetKey": sub.AssetKey,
		})
	}
	return nil
}

func (s *SQLStore) GetSubOrder(ctx context.Context, assetKey string) (*service.SubOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asset_key, order_id, seq, seller_org, status, payment_method, cod_status, blockchain_data
		FROM sub_orders WHERE asset_key = ?`, assetKey)
	sub, err := scanSubOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("sub-order not found", map[string]interface{}{
			"assetKey": assetKey,
		})
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to load sub-order", err, map[string]interface{}{
			"assetKey": assetKey,
		})
	}
	return sub, nil
}

func (s *SQLStore) ListSubOrders(ctx context.Context, orderID string) ([]*service.SubOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_key, order_id, seq, seller_org, status, payment_method, cod_status, blockchain_data
		FROM sub_orders WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to list sub-orders", err, map[string]interface{}{
			"orderId": orderID,
		})
	}
	defer rows.Close()

	var subs []*service.SubOrder
	for rows.Next() {
		sub, err := scanSubOrder(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("failed to scan sub-order", err, nil)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("failed to iterate sub-orders", err, nil)
	}
	return subs, nil
}

func (s *SQLStore) UpdateProjection(ctx context.Context, assetKey string, status service.Status, codStatus string, blockchainData []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sub_orders
		SET status = ?, cod_status = ?, blockchain_data = ?, updated_at = ?
		WHERE asset_key = ?`,
		string(status), nullable(codStatus), nullableBytes(blockchainData), time.Now().UTC(), assetKey,
	)
	if err != nil {
		return apperrors.NewDatabaseError("failed to update projection", err, map[string]interface{}{
			"assetKey": assetKey,
		})
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSubOrder(row scannable) (*service.SubOrder, error) {
	var sub service.SubOrder
	var codStatus sql.NullString
	var blockchainData []byte
	err := row.Scan(
		&sub.AssetKey, &sub.OrderID, &sub.Seq, &sub.SellerOrg,
		&sub.Status, &sub.PaymentMethod, &codStatus, &blockchainData,
	)
	if err != nil {
		return nil, err
	}
	sub.CODStatus = codStatus.String
	sub.BlockchainData = blockchainData
	return &sub, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
