package order

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

func validateCart(cart CartSnapshot) error {
	if len(cart.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, l := range cart.Lines {
		if l.Quantity <= 0 || l.Quantity > pricing.MaxQuantity {
			return &InvalidQuantityError{VariantID: l.VariantID, Quantity: l.Quantity}
		}
		if strings.TrimSpace(l.VariantID) == "" {
			return &UnknownVariantError{VariantID: l.VariantID}
		}
	}
	return nil
}

func validateAddress(a Address) error {
	a = trimAddress(a)
	switch {
	case a.Name == "":
		return &InvalidAddressError{Field: "name"}
	case a.Phone == "":
		return &InvalidAddressError{Field: "phone"}
	case a.Line1 == "":
		return &InvalidAddressError{Field: "address line"}
	case a.City == "":
		return &InvalidAddressError{Field: "city"}
	}
	return nil
}

func trimAddress(a Address) Address {
	return Address{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		Province:   strings.TrimSpace(a.Province),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Notes:      strings.TrimSpace(a.Notes),
	}
}

// IdempotencyKey derives a key from cart contents and a client nonce. Line
// order does not matter.
func IdempotencyKey(lines []CartLine, nonce string) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.VariantID + ":" + strconv.Itoa(l.Quantity)
	}
	slices.Sort(parts)

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}

// Number returns the human-readable order number: ORD-<year>-<first twelve
// hex digits of the id, upper-cased>. The twelve digits are the 48 random bits
// ahead of the UUID version nibble.
func Number(id uuid.UUID, createdAt time.Time) string {
	hexID := hex.EncodeToString(id[:6])
	return "ORD-" + strconv.Itoa(createdAt.Year()) + "-" + strings.ToUpper(hexID)
}
