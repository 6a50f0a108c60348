package domain

import "fmt"

// Extra is an add-on selected during checkout (child seat, GPS, ...)
type Extra struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity"`
}

// ExtraSelection is what the customer submits; prices never come from the client
type ExtraSelection struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"`
}

type ExtraOffer struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Price       Money  `json:"price"`
	MaxQuantity int    `json:"max_quantity"`
}

type ExtrasCatalog map[string]ExtraOffer

// Resolve prices a selection against the catalog, keeping the submitted order.
// Zero quantities are dropped.
func (c ExtrasCatalog) Resolve(selection []ExtraSelection) ([]Extra, error) {
	extras := make([]Extra, 0, len(selection))
	for _, s := range selection {
		offer, ok := c[s.Key]
		if !ok {
			return nil, fmt.Errorf("unknown extra %q", s.Key)
		}
		if s.Quantity < 0 || (offer.MaxQuantity > 0 && s.Quantity > offer.MaxQuantity) {
			return nil, fmt.Errorf("invalid quantity %d for extra %q", s.Quantity, s.Key)
		}
		if s.Quantity == 0 {
			continue
		}
		extras = append(extras, Extra{Key: offer.Key, Name: offer.Name, Price: offer.Price, Quantity: s.Quantity})
	}
	return extras, nil
}
