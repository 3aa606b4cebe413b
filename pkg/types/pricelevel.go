package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnmarshalJSON accepts a level as either an object {"price":"0.5","size":"10"}
// or a two-element tuple ["0.5","10"], matching Exchange A's documented
// ladder-entry shapes (spec §6). Numeric fields on the wire may be quoted
// strings or bare numbers; both are accepted.
func (p *PriceLevel) UnmarshalJSON(data []byte) error {
	// Tuple form: [price, size]
	var tuple []json.Number
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) != 2 {
			return fmt.Errorf("price level tuple: want 2 elements, got %d", len(tuple))
		}
		price, err := tuple[0].Float64()
		if err != nil {
			return fmt.Errorf("price level tuple price: %w", err)
		}
		size, err := tuple[1].Float64()
		if err != nil {
			return fmt.Errorf("price level tuple size: %w", err)
		}
		p.Price, p.Size = price, size
		return nil
	}

	// Object form: {"price": "...", "size": "..."}
	var obj struct {
		Price json.Number `json:"price"`
		Size  json.Number `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("price level: %w", err)
	}
	price, err := parseFlexibleNumber(obj.Price)
	if err != nil {
		return fmt.Errorf("price level price: %w", err)
	}
	size, err := parseFlexibleNumber(obj.Size)
	if err != nil {
		return fmt.Errorf("price level size: %w", err)
	}
	p.Price, p.Size = price, size
	return nil
}

func parseFlexibleNumber(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	return strconv.ParseFloat(n.String(), 64)
}
