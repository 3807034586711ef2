package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestApplyTransactionScenarios(t *testing.T) {
	cases := []struct {
		name                       string
		old, bill, payment, expect int64
	}{
		{"use credit fully", -300, 250, 0, -50},
		{"overpayment creates credit", 1000, 500, 2000, -500},
		{"full payoff", 1000, 500, 1500, 0},
		{"partial credit use", -300, 250, 100, -150},
		{"partial payment increases debt", 200, 500, 100, 600},
		{"cash sale leaves credit untouched", -300, 250, 250, -300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyTransaction(dec(tc.old), dec(tc.bill), dec(tc.payment))
			require.True(t, got.Equal(dec(tc.expect)), "got %s want %d", got, tc.expect)
		})
	}
}

func TestApplyTransactionMatchesFold(t *testing.T) {
	// Advancing a balance by one bill/payment event must be identical to
	// folding the equivalent debit/credit entry pair onto the same seed.
	seeds := []int64{-300, -1, 0, 1, 250, 1000}
	bills := []int64{0, 1, 250, 500, 999}
	payments := []int64{0, 1, 100, 500, 2000}
	for _, seed := range seeds {
		for _, bill := range bills {
			for _, payment := range payments {
				viaTxn := ApplyTransaction(dec(seed), dec(bill), dec(payment))
				viaFold := FoldFrom(dec(seed), []Entry{
					{Type: EntrySale, Debit: dec(bill)},
					{Type: EntryPayment, Credit: dec(payment)},
				})
				require.True(t, viaTxn.Equal(viaFold),
					"seed=%d bill=%d payment=%d: txn=%s fold=%s", seed, bill, payment, viaTxn, viaFold)
			}
		}
	}
}

func TestFoldOrderIndependentOfGrouping(t *testing.T) {
	entries := []Entry{
		{Debit: dec(400)},
		{Credit: dec(150)},
		{Debit: dec(50)},
		{Credit: dec(500)},
	}
	require.True(t, Fold(entries).Equal(dec(-200)))

	// Folding a prefix then seeding the remainder gives the same result.
	partial := Fold(entries[:2])
	require.True(t, FoldFrom(partial, entries[2:]).Equal(dec(-200)))
}

func TestFoldFractionalAmountsExact(t *testing.T) {
	a := decimal.RequireFromString("0.10")
	b := decimal.RequireFromString("0.20")
	got := Fold([]Entry{{Debit: a}, {Debit: b}, {Credit: decimal.RequireFromString("0.30")}})
	require.True(t, got.IsZero(), "got %s", got)
}

func TestSummarise(t *testing.T) {
	entries := []Entry{
		{Debit: dec(500)},
		{Credit: dec(200)},
		{Debit: dec(100)},
	}
	sum := Summarise(SubjectCustomer, 42, entries)
	require.True(t, sum.TotalDebits.Equal(dec(600)))
	require.True(t, sum.TotalCredits.Equal(dec(200)))
	require.True(t, sum.Balance.Equal(dec(400)))

	empty := Summarise(SubjectCompany, 1, nil)
	require.True(t, empty.Balance.IsZero())
}
