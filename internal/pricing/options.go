package pricing

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Option is one priced add-on of a service, normalized from the raw
// pricelist payload. Price is additive per effective unit.
type Option struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// ParseOptions normalizes a service's raw options payload into an ordered
// list. The pricelist stores three historical shapes:
//
//	null / "" / "{}"                          → no options
//	[{"key":"lam","label":"..","price":50}]   → list form
//	{"lam":{"label":"..","price":50}}         → keyed form, value may also be
//	{"lyuvers":50}                              a bare number (price only)
//
// List entries without a key are dropped, keyed entries with a null value
// are dropped, non-numeric prices coerce to zero and a missing label falls
// back to the key. Anything unparseable yields an empty list so pricing
// degrades to "no options" instead of blocking the line.
func ParseOptions(raw []byte) []Option {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '[':
		return parseOptionList(raw)
	case '{':
		return parseOptionMap(raw)
	}
	return nil
}

func parseOptionList(raw []byte) []Option {
	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	opts := make([]Option, 0, len(entries))
	for _, e := range entries {
		key, _ := e["key"].(string)
		if key == "" {
			continue
		}
		label, _ := e["label"].(string)
		if label == "" {
			label = key
		}
		opts = append(opts, Option{Key: key, Label: label, Price: coercePrice(e["price"])})
	}
	return opts
}

// parseOptionMap walks the object token by token: encoding/json maps do not
// preserve key order, and the returned list must follow the source's
// insertion order.
func parseOptionMap(raw []byte) []Option {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil { // opening brace
		return nil
	}

	var opts []Option
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		if value == nil {
			continue
		}

		opt := Option{Key: key, Label: key}
		switch v := value.(type) {
		case map[string]interface{}:
			if label, ok := v["label"].(string); ok && label != "" {
				opt.Label = label
			}
			opt.Price = coercePrice(v["price"])
		default:
			opt.Price = coercePrice(value)
		}
		opts = append(opts, opt)
	}
	return opts
}

func coercePrice(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	}
	return decimal.Zero
}
