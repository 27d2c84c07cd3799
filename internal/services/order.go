package services

import (
	"context"
	"fmt"
	"time"

	"github.com/orderdesk/apiserver/internal/logging"
	"github.com/orderdesk/apiserver/internal/mq"
	"github.com/orderdesk/apiserver/types"
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	List(ctx context.Context) ([]types.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]types.Order, error)
	Get(ctx context.Context, id int64) (types.Order, error)
	Create(ctx context.Context, order types.Order) (types.Order, error)
	Update(ctx context.Context, order types.Order) (types.Order, error)
	Delete(ctx context.Context, id int64) error
}

// EventPublisher receives order lifecycle events.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event mq.OrderEvent) (string, error)
}

// OrderService applies ownership rules on top of an OrderRepository.
type OrderService struct {
	repo   OrderRepository
	images *ImageUploader
	events EventPublisher
	now    func() time.Time
}

// NewOrderService constructs an OrderService. events may be nil.
func NewOrderService(repo OrderRepository, images *ImageUploader, events EventPublisher) *OrderService {
	return &OrderService{
		repo:   repo,
		images: images,
		events: events,
		now:    time.Now,
	}
}

// List returns every order for admins and the requester's own orders otherwise.
func (s *OrderService) List(ctx context.Context, requester types.Identity) ([]types.Order, error) {
	if requester.IsAdmin() {
		return s.repo.List(ctx)
	}
	return s.repo.ListByUser(ctx, requester.ID)
}

// Create stores a pending order owned by the requester. image may be nil.
func (s *OrderService) Create(ctx context.Context, requester types.Identity, fields types.OrderFields, image *ImageUpload) (types.Order, error) {
	order := types.Order{
		UserID: requester.ID,
		Status: types.OrderStatusPending,
	}
	fields.Apply(&order)

	imageURL, err := s.saveImage(ctx, image)
	if err != nil {
		return types.Order{}, err
	}
	order.ImageURL = imageURL

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		s.discardImage(ctx, imageURL)
		return types.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.publish(ctx, mq.EventOrderCreated, created, requester)
	return created, nil
}

// Update replaces the editable fields of order id. The previous image is
// kept unless a new one is supplied.
func (s *OrderService) Update(ctx context.Context, requester types.Identity, id int64, fields types.OrderFields, image *ImageUpload) (types.Order, error) {
	order, err := s.authorize(ctx, requester, id)
	if err != nil {
		return types.Order{}, err
	}

	fields.Apply(&order)

	imageURL, err := s.saveImage(ctx, image)
	if err != nil {
		return types.Order{}, err
	}
	if imageURL != nil {
		order.ImageURL = imageURL
	}

	updated, err := s.repo.Update(ctx, order)
	if err != nil {
		s.discardImage(ctx, imageURL)
		return types.Order{}, fmt.Errorf("update order: %w", err)
	}

	s.publish(ctx, mq.EventOrderUpdated, updated, requester)
	return updated, nil
}

// Delete removes order id.
func (s *OrderService) Delete(ctx context.Context, requester types.Identity, id int64) error {
	order, err := s.authorize(ctx, requester, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	s.publish(ctx, mq.EventOrderDeleted, order, requester)
	return nil
}

// authorize loads order id and checks that requester may change it.
// store.ErrNotFound is returned unwrapped so callers can match it.
func (s *OrderService) authorize(ctx context.Context, requester types.Identity, id int64) (types.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Order{}, err
	}
	if !order.OwnedBy(requester.ID) && !requester.IsAdmin() {
		return types.Order{}, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) saveImage(ctx context.Context, image *ImageUpload) (*string, error) {
	if image == nil {
		return nil, nil
	}
	if s.images == nil {
		return nil, fmt.Errorf("store image: no image storage configured")
	}
	url, err := s.images.Save(ctx, *image)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (s *OrderService) discardImage(ctx context.Context, imageURL *string) {
	if imageURL == nil || s.images == nil {
		return
	}
	if err := s.images.Remove(ctx, *imageURL); err != nil {
		logging.FromContext(ctx).Warn("failed to remove orphaned image", "image_url", *imageURL, "error", err)
	}
}

func (s *OrderService) publish(ctx context.Context, eventType string, order types.Order, requester types.Identity) {
	if s.events == nil {
		return
	}
	event := mq.OrderEvent{
		Type:       eventType,
		Order:      order,
		ActorID:    requester.ID,
		OccurredAt: s.now().UTC(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		logging.FromContext(ctx).Warn("failed to publish order event",
			"event", eventType,
			"order_id", order.ID,
			"error", err,
		)
	}
}
