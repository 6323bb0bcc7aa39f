package model

// TaxPolicy is the configurable tax treatment applied to gain/loss
// classification. The orchestrator snapshots it when a run starts, so
// settings changes never affect a run already in flight.
type TaxPolicy struct {
	// TaxFreePeriodDays is the holding period after which a disposal
	// becomes tax-free. 0 disables the exemption. The boundary is
	// exclusive: a disposal at exactly TaxFreePeriodDays days is still
	// taxable; the exemption starts the day after.
	TaxFreePeriodDays int `json:"taxFreePeriodDays"`

	// IncludeCryptoToCrypto controls whether crypto-to-crypto disposals
	// count toward taxable totals. They are always recorded for balance
	// tracking either way.
	IncludeCryptoToCrypto bool `json:"includeCryptoToCryptoTrades"`

	// AccountForMarginEvents controls whether margin profit/loss events
	// count toward taxable totals.
	AccountForMarginEvents bool `json:"accountForMarginEvents"`

	// ReferenceCurrency is the fiat currency gains are expressed in.
	ReferenceCurrency string `json:"referenceCurrency"`
}

// DefaultTaxPolicy returns the policy used when a report request does not
// override any options.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{
		TaxFreePeriodDays:      365,
		IncludeCryptoToCrypto:  true,
		AccountForMarginEvents: true,
		ReferenceCurrency:      "EUR",
	}
}
