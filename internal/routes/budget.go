package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// budget is a yearly budget in lakhs. Clients send either a number or a
// one-element array from a range slider.
type budget float64

func (b *budget) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = 0
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("budget: %w", err)
		}
		if len(values) == 0 {
			*b = 0
			return nil
		}
		*b = budget(values[0])
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	*b = budget(v)
	return nil
}
