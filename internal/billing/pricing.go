package billing

// Pricing derives bonus creations owed from a payment amount.
type Pricing struct {
	CreditsPerDollar int
}

// CreditsOwed converts the paid amount into credits. Fractions of a
// credit round down.
func (p Pricing) CreditsOwed(amountCents int) int {
	if amountCents <= 0 {
		return 0
	}
	return amountCents * p.CreditsPerDollar / 100
}
