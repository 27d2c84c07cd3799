package store

import (
	"context"

	"github.com/orderdesk/apiserver/types"
)

// FileOrderRepository persists orders inside a FileStore.
type FileOrderRepository struct {
	fs *FileStore
}

func NewFileOrderRepository(fs *FileStore) *FileOrderRepository {
	return &FileOrderRepository{fs: fs}
}

func (r *FileOrderRepository) List(ctx context.Context) ([]types.Order, error) {
	return r.filter(ctx, func(types.Order) bool { return true })
}

func (r *FileOrderRepository) ListByUser(ctx context.Context, userID int64) ([]types.Order, error) {
	return r.filter(ctx, func(o types.Order) bool { return o.UserID == userID })
}

func (r *FileOrderRepository) Get(ctx context.Context, id int64) (types.Order, error) {
	if err := ctx.Err(); err != nil {
		return types.Order{}, err
	}
	var order types.Order
	err := r.fs.view(func(data dataFile) error {
		for _, o := range data.Orders {
			if o.ID == id {
				order = o
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return types.Order{}, err
	}
	return order, nil
}

func (r *FileOrderRepository) Create(ctx context.Context, order types.Order) (types.Order, error) {
	if err := ctx.Err(); err != nil {
		return types.Order{}, err
	}
	err := r.fs.update(func(data *dataFile) error {
		order.ID = data.nextOrderID()
		data.Orders = append(data.Orders, order)
		return nil
	})
	if err != nil {
		return types.Order{}, err
	}
	return order, nil
}

// Update replaces the stored order that has the same id.
func (r *FileOrderRepository) Update(ctx context.Context, order types.Order) (types.Order, error) {
	if err := ctx.Err(); err != nil {
		return types.Order{}, err
	}
	err := r.fs.update(func(data *dataFile) error {
		for i := range data.Orders {
			if data.Orders[i].ID == order.ID {
				data.Orders[i] = order
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return types.Order{}, err
	}
	return order, nil
}

func (r *FileOrderRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.fs.update(func(data *dataFile) error {
		for i := range data.Orders {
			if data.Orders[i].ID == id {
				data.Orders = append(data.Orders[:i], data.Orders[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

func (r *FileOrderRepository) filter(ctx context.Context, keep func(types.Order) bool) ([]types.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders := []types.Order{}
	err := r.fs.view(func(data dataFile) error {
		for _, o := range data.Orders {
			if keep(o) {
				orders = append(orders, o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
