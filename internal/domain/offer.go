package domain

import "fmt"

// Offer is one promotional offer as shown to chat users.
type Offer struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Details          string `json:"details"`
	Limit            string `json:"limit"`
	ImageURL         string `json:"image_url,omitempty"`
	PromotionTime    string `json:"promotion_time"`
	RegularPrice     string `json:"regular_price"`
	RegularPriceUnit string `json:"regular_price_unit"`
	OfferPrice       string `json:"offer_price"`
	OfferPriceUnit   string `json:"offer_price_unit"`
	DiscountPercent  int    `json:"discount_percent"`
}

// ShortLine renders the compact one-line form used in the offer overview.
func (o Offer) ShortLine() string {
	return fmt.Sprintf("%s - %s => %s", o.Name, o.RegularPriceUnit, o.OfferPriceUnit)
}
