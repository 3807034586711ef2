package voucher

import (
	"fmt"
	"time"
)

// NumberPrefix maps a voucher type onto its number prefix.
func NumberPrefix(t Type) string {
	switch t {
	case TypeIncome:
		return "INC"
	case TypeExpense:
		return "EXP"
	case TypeTransfer:
		return "TRF"
	default:
		return "VCH"
	}
}

// FormatNumber renders a voucher number from its allocated daily sequence.
// Sequence allocation itself is an atomic per-(prefix, date) counter bump in
// the store; callers never count-then-insert.
func FormatNumber(prefix string, date time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%04d", prefix, date.Format("20060102"), seq)
}
