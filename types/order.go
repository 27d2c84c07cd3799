package types

// OrderStatus is the delivery state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDelivered OrderStatus = "delivered"
)

// Order is a delivery request owned by exactly one user.
type Order struct {
	ID              int64       `json:"id" db:"id"`
	UserID          int64       `json:"userId" db:"user_id"`
	Item            string      `json:"item" db:"item"`
	DeliveryAddress string      `json:"deliveryAddress" db:"delivery_address"`
	Quantity        int         `json:"quantity" db:"quantity"`
	Phone           string      `json:"phone" db:"phone"`
	Notes           string      `json:"notes" db:"notes"`
	Agree           bool        `json:"agree" db:"agree"`
	Status          OrderStatus `json:"status" db:"status"`

	// ImageURL is the public path of the uploaded image, or nil when the
	// order was created without one.
	ImageURL *string `json:"imageUrl" db:"image_url"`
}

// OrderFields holds the editable part of an order after parsing.
type OrderFields struct {
	Item            string
	DeliveryAddress string
	Quantity        int
	Phone           string
	Notes           string
	Agree           bool
}

// Apply replaces every editable field of o with f.
func (f OrderFields) Apply(o *Order) {
	o.Item = f.Item
	o.DeliveryAddress = f.DeliveryAddress
	o.Quantity = f.Quantity
	o.Phone = f.Phone
	o.Notes = f.Notes
	o.Agree = f.Agree
}

// OwnedBy reports whether the order belongs to the given user.
func (o Order) OwnedBy(userID int64) bool {
	return o.UserID == userID
}
