package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/orderdesk/apiserver/types"
)

const orderColumns = `id, user_id, item, delivery_address, quantity, phone, notes, agree, status, image_url`

// PostgresOrderRepository handles persistence for orders in Postgres.
type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) List(ctx context.Context) ([]types.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders ORDER BY id`
	return r.query(ctx, query)
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int64) ([]types.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY id`
	return r.query(ctx, query, userID)
}

func (r *PostgresOrderRepository) Get(ctx context.Context, id int64) (types.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, err
	}
	return order, nil
}

func (r *PostgresOrderRepository) Create(ctx context.Context, order types.Order) (types.Order, error) {
	const query = `
		INSERT INTO orders (user_id, item, delivery_address, quantity, phone, notes, agree, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		order.UserID,
		order.Item,
		order.DeliveryAddress,
		order.Quantity,
		order.Phone,
		order.Notes,
		order.Agree,
		string(order.Status),
		nullString(order.ImageURL),
	).Scan(&order.ID); err != nil {
		return types.Order{}, err
	}
	return order, nil
}

func (r *PostgresOrderRepository) Update(ctx context.Context, order types.Order) (types.Order, error) {
	const query = `
		UPDATE orders
		SET item = $1,
			delivery_address = $2,
			quantity = $3,
			phone = $4,
			notes = $5,
			agree = $6,
			status = $7,
			image_url = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		order.Item,
		order.DeliveryAddress,
		order.Quantity,
		order.Phone,
		order.Notes,
		order.Agree,
		string(order.Status),
		nullString(order.ImageURL),
		order.ID,
	)
	if err != nil {
		return types.Order{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Order{}, err
	}
	if affected == 0 {
		return types.Order{}, ErrNotFound
	}
	return order, nil
}

func (r *PostgresOrderRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM orders WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresOrderRepository) query(ctx context.Context, query string, args ...any) ([]types.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []types.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var order types.Order
	var status string
	var imageURL sql.NullString
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Item,
		&order.DeliveryAddress,
		&order.Quantity,
		&order.Phone,
		&order.Notes,
		&order.Agree,
		&status,
		&imageURL,
	); err != nil {
		return types.Order{}, err
	}
	order.Status = types.OrderStatus(status)
	if imageURL.Valid {
		url := imageURL.String
		order.ImageURL = &url
	}
	return order, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
