package request

// TaxPolicyOverride carries optional per-run overrides of the configured
// tax policy. Absent fields keep the server defaults.
type TaxPolicyOverride struct {
	TaxFreePeriodDays      *int    `json:"taxFreePeriodDays,omitempty"`
	IncludeCryptoToCrypto  *bool   `json:"includeCrypto2Crypto,omitempty"`
	AccountForMarginEvents *bool   `json:"accountForMargin,omitempty"`
	ReferenceCurrency      *string `json:"referenceCurrency,omitempty"`
}

// CreateReportRequest starts a report run over [startTime, endTime).
// Timestamps are RFC 3339. UserID is optional and defaults to "default".
type CreateReportRequest struct {
	UserID    string             `json:"userId,omitempty"`
	StartTime string             `json:"startTime"`
	EndTime   string             `json:"endTime"`
	Policy    *TaxPolicyOverride `json:"policy,omitempty"`
}
