package pricevalidation

// ExpectedLine is one locally priced cart row submitted for validation.
type ExpectedLine struct {
	ProductID              string
	Quantity               int
	ExpectedUnitPriceMinor int64
}

type requestItem struct {
	ProductID                   string `json:"productId"`
	Quantity                    int    `json:"quantity"`
	ExpectedUnitPriceMinorUnits int64  `json:"expectedUnitPriceMinorUnits"`
}

type request struct {
	Items []requestItem `json:"items"`
}

// ResponseItem is the authority's verdict for one line. All required fields
// are pointers so that an absent field fails structural validation instead of
// decoding as a zero value.
type ResponseItem struct {
	ProductID                     *string `json:"productId" validate:"required"`
	Quantity                      *int    `json:"quantity" validate:"required"`
	OriginalUnitPriceMinorUnits   *int64  `json:"originalUnitPriceMinorUnits" validate:"required"`
	DiscountedUnitPriceMinorUnits *int64  `json:"discountedUnitPriceMinorUnits" validate:"required"`
	DiscountAmountMinorUnits      *int64  `json:"discountAmountMinorUnits" validate:"required"`
	UnitTaxMinorUnits             *int64  `json:"unitTaxMinorUnits" validate:"required"`
	UnitSubtotalMinorUnits        *int64  `json:"unitSubtotalMinorUnits" validate:"required"`
	AppliedPromotionID            *string `json:"appliedPromotionId"`
	IsPriceValid                  *bool   `json:"isPriceValid" validate:"required"`
}

// Response is the authority's full reply. Totals are in minor units.
type Response struct {
	IsValid                        *bool          `json:"isValid" validate:"required"`
	Items                          []ResponseItem `json:"items" validate:"required,dive"`
	TotalOriginalPriceMinorUnits   *int64         `json:"totalOriginalPriceMinorUnits" validate:"required"`
	TotalDiscountedPriceMinorUnits *int64         `json:"totalDiscountedPriceMinorUnits" validate:"required"`
	TotalDiscountAmountMinorUnits  *int64         `json:"totalDiscountAmountMinorUnits" validate:"required"`
	TotalTaxMinorUnits             *int64         `json:"totalTaxMinorUnits" validate:"required"`
	TotalSubtotalMinorUnits        *int64         `json:"totalSubtotalMinorUnits" validate:"required"`
}

// Totals are the authority-computed order figures adopted when a
// reconciliation succeeds.
type Totals struct {
	OriginalPriceMinor   int64
	DiscountedPriceMinor int64
	DiscountAmountMinor  int64
	TaxMinor             int64
	SubtotalMinor        int64
}

// AcceptedPrice is an authority-confirmed per-line unit price, keyed by
// product in Outcome.Accepted.
type AcceptedPrice struct {
	UnitPriceMinor int64
	PromotionID    *string
}

func totalsFrom(resp *Response) Totals {
	return Totals{
		OriginalPriceMinor:   *resp.TotalOriginalPriceMinorUnits,
		DiscountedPriceMinor: *resp.TotalDiscountedPriceMinorUnits,
		DiscountAmountMinor:  *resp.TotalDiscountAmountMinorUnits,
		TaxMinor:             *resp.TotalTaxMinorUnits,
		SubtotalMinor:        *resp.TotalSubtotalMinorUnits,
	}
}
