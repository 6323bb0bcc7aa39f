// Package taxrule classifies gain/loss records against a tax policy.
//
// Classification is a pure function of the draft record and the policy
// snapshot; it touches no state and is safe to call from anywhere.
package taxrule

import "github.com/coinfolio/taxledger-backend/internal/model"

// Classify decides whether a disposal is taxable and which bucket it
// falls into. Precedence: margin exclusion, then the tax-free holding
// period, then the crypto-to-crypto exclusion.
//
// The holding-period boundary is exclusive: with TaxFreePeriodDays = 365
// a record held exactly 365 days is still taxable; the exemption applies
// only when the holding period is strictly greater than the threshold.
func Classify(draft model.GainLossRecord, policy model.TaxPolicy) (bool, model.TaxBucket) {
	if draft.MarginDerived && !policy.AccountForMarginEvents {
		return false, model.BucketExcludedMargin
	}

	if policy.TaxFreePeriodDays > 0 && draft.HoldingPeriodDays > policy.TaxFreePeriodDays {
		return false, model.BucketTaxFree
	}

	if draft.CryptoToCrypto && !policy.IncludeCryptoToCrypto {
		return false, model.BucketExcludedCryptoToCrypto
	}

	return true, model.BucketTaxable
}
