package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider issues unique identifiers for persisted rows.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

const orderSuffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber formats a human readable order number: ORD- followed by the last
// six digits of the unix millisecond clock and three base36 characters drawn
// from a random UUID.
func NewOrderNumber(now time.Time) (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	millis := fmt.Sprintf("%06d", now.UnixMilli()%1_000_000)
	suffix := make([]byte, 3)
	for index := range suffix {
		suffix[index] = orderSuffixAlphabet[int(value[index])%len(orderSuffixAlphabet)]
	}
	return "ORD-" + millis + string(suffix), nil
}
