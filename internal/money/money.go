// Package money implements minor-unit amounts and the marketplace fee rules.
package money

// Amounts are represented in minor units (paise). No floats.

// Basis-point rates used across the marketplace.
const (
	PlatformFeeBP   = 1000 // 10% platform surcharge on consultations
	GSTBP           = 1800 // 18% GST on document pricing
	RefundFeeBP     = 200  // 2% processing fee withheld from refunds
	LawyerPayoutBP  = 9000 // 90% of an appointment payment goes to the lawyer
	BasisPointScale = 10000
)

// RoundBasisPoints returns amount*bp/10000 rounded half-up.
// Amounts are assumed non-negative.
func RoundBasisPoints(amount int64, bp int64) int64 {
	return (amount*bp + BasisPointScale/2) / BasisPointScale
}

// PlatformFee returns the 10% platform surcharge for a consultation fee.
func PlatformFee(consultation int64) int64 {
	return RoundBasisPoints(consultation, PlatformFeeBP)
}

// GST returns the 18% tax on a document's base plus additional charges.
func GST(base, additional int64) int64 {
	return RoundBasisPoints(base+additional, GSTBP)
}

// RefundCap returns the maximum refundable amount: the original amount less
// the 2% processing fee.
func RefundCap(amount int64) int64 {
	return amount - RoundBasisPoints(amount, RefundFeeBP)
}

// Split divides an appointment payment into the lawyer payout and the
// platform share. The platform share absorbs the rounding remainder so the
// two parts always sum to amount.
func Split(amount int64) (payee, platform int64) {
	payee = RoundBasisPoints(amount, LawyerPayoutBP)
	return payee, amount - payee
}
