package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/orderdesk/apiserver/types"
)

const (
	MsgItemRequired    = "Item is required"
	MsgAddressRequired = "Delivery address is required"
	MsgQuantityInvalid = "Quantity must be a positive number"
	MsgPhoneInvalid    = "Phone must be 10-15 digits"
	MsgAgreeInvalid    = "Agree must be true or false"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)

// OrderPayload is an order as received from a form: every field is the raw
// submitted string. Agree is nil when the field was not sent.
type OrderPayload struct {
	Item            string
	DeliveryAddress string
	Quantity        string
	Phone           string
	Notes           string
	Agree           *string
}

// ValidateOrderPayload checks the required order fields. Every rule runs and
// the messages come back in a fixed order; nil means the payload is valid.
func ValidateOrderPayload(p OrderPayload) []string {
	var errs []string
	if p.Item == "" {
		errs = append(errs, MsgItemRequired)
	}
	if p.DeliveryAddress == "" {
		errs = append(errs, MsgAddressRequired)
	}
	if _, ok := parseQuantity(p.Quantity); !ok {
		errs = append(errs, MsgQuantityInvalid)
	}
	if !phonePattern.MatchString(p.Phone) {
		errs = append(errs, MsgPhoneInvalid)
	}
	return errs
}

// Parse validates p and converts it to typed order fields.
func (p OrderPayload) Parse() (types.OrderFields, []string) {
	errs := ValidateOrderPayload(p)

	agree, ok := parseAgree(p.Agree)
	if !ok {
		errs = append(errs, MsgAgreeInvalid)
	}
	if len(errs) > 0 {
		return types.OrderFields{}, errs
	}

	quantity, _ := parseQuantity(p.Quantity)
	return types.OrderFields{
		Item:            p.Item,
		DeliveryAddress: p.DeliveryAddress,
		Quantity:        quantity,
		Phone:           p.Phone,
		Notes:           p.Notes,
		Agree:           agree,
	}, nil
}

// MaxQuantity is the largest quantity the orders table column holds.
const MaxQuantity = math.MaxInt32

func parseQuantity(raw string) (int, bool) {
	quantity, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || quantity <= 0 || quantity > MaxQuantity {
		return 0, false
	}
	return quantity, true
}

func parseAgree(raw *string) (bool, bool) {
	if raw == nil {
		return false, true
	}
	switch strings.ToLower(strings.TrimSpace(*raw)) {
	case "true", "1", "on":
		return true, true
	case "false", "0", "off", "":
		return false, true
	default:
		return false, false
	}
}
