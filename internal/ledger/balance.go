package ledger

import "github.com/shopspring/decimal"

// The running-balance arithmetic lives here and nowhere else. Sign
// convention: debits raise the balance (subject owes more), credits lower it
// (subject is owed). A negative balance means the subject holds credit with
// the business.

// Fold reduces entries into a running balance starting from zero. Entries
// must already be ordered oldest first; the store guarantees that order.
func Fold(entries []Entry) decimal.Decimal {
	return FoldFrom(decimal.Zero, entries)
}

// FoldFrom reduces entries into a running balance starting from seed.
func FoldFrom(seed decimal.Decimal, entries []Entry) decimal.Decimal {
	balance := seed
	for _, e := range entries {
		balance = balance.Add(e.Debit).Sub(e.Credit)
	}
	return balance
}

// ApplyTransaction advances a balance by one bill/payment event. It is
// equivalent to folding a debit of bill and a credit of payment onto
// previous. No automatic credit application happens here: whether a payment
// draws down existing credit is the caller's decision, the arithmetic only
// tracks the net signed result.
func ApplyTransaction(previous, bill, payment decimal.Decimal) decimal.Decimal {
	return previous.Add(bill).Sub(payment)
}

// Summarise folds entries into a BalanceSummary for one subject.
func Summarise(subjectType SubjectType, subjectID int64, entries []Entry) BalanceSummary {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, e := range entries {
		debits = debits.Add(e.Debit)
		credits = credits.Add(e.Credit)
	}
	return BalanceSummary{
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		TotalDebits:  debits,
		TotalCredits: credits,
		Balance:      debits.Sub(credits),
	}
}
