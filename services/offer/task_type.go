package offer

const (
	OfferBulkRedemption = "offer:bulk_redemption"
)

// BulkRedemptionPayload is stored on the job row; the queue task only
// carries the job ID.
type BulkRedemptionPayload struct {
	OfferID     string   `json:"offer_id"`
	UserIDs     []string `json:"user_ids,omitempty"`
	FromSegment bool     `json:"from_segment,omitempty"`

	ProductRef ProductRef `json:"product_ref"`
	BasePrice  float64    `json:"base_price"`

	// Optional admin overrides applied to every redemption in the
	// batch instead of the offer's own discount derivation.
	PriceOverride    *float64 `json:"price_override,omitempty"`
	DiscountOverride *float64 `json:"discount_override,omitempty"`
}

type BulkRedemptionEntry struct {
	UserID       string `json:"user_id"`
	RedemptionID string `json:"redemption_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type BulkRedemptionSummary struct {
	OfferID   string                `json:"offer_id"`
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Entries   []BulkRedemptionEntry `json:"entries,omitempty"`
}
