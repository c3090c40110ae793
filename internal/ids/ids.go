package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed unique identifier, e.g. "sale-1b4e28ba-...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// SaleNumber derives a human-readable sale number from the creation time:
// the last 6 digits of the unix-millisecond timestamp.
func SaleNumber(at time.Time) string {
	return fmt.Sprintf("SALE-%06d", at.UnixMilli()%1_000_000)
}

// ReceiptNumber is the 8-digit variant used for receipts.
func ReceiptNumber(at time.Time) string {
	return fmt.Sprintf("RCP-%08d", at.UnixMilli()%100_000_000)
}

// RefundNumber mirrors SaleNumber for refund records.
func RefundNumber(at time.Time) string {
	return fmt.Sprintf("REF-%06d", at.UnixMilli()%1_000_000)
}
