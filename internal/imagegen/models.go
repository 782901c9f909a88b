package imagegen

import (
	"fmt"
	"sort"

	"github.com/sakif/bananagen/internal/apperror"
)

// DefaultModel is used when the caller does not pick a model.
const DefaultModel = "nano-banana"

const geminiFlashImage = "google/gemini-2.5-flash-image"

// Ledger reasons recorded for each tier.
const (
	ReasonBasic = "gen:basic"
	ReasonPro   = "gen:pro"
)

// Model is one entry of the public model catalogue.
type Model struct {
	Selector   string `json:"id"`
	ProviderID string `json:"-"`
	Cost       int64  `json:"cost"`
	Reason     string `json:"-"`
}

// The public names are product labels; all of them currently route to the
// same provider model and differ only in price.
var catalog = map[string]Model{
	"nano-banana":     {Selector: "nano-banana", ProviderID: geminiFlashImage, Cost: 1, Reason: ReasonBasic},
	"nano-banana-pro": {Selector: "nano-banana-pro", ProviderID: geminiFlashImage, Cost: 5, Reason: ReasonPro},
	"seed-dream":      {Selector: "seed-dream", ProviderID: geminiFlashImage, Cost: 1, Reason: ReasonBasic},
}

// ResolveModel maps a public selector to its catalogue entry. An empty
// selector means DefaultModel; anything outside the catalogue is a
// validation error.
func ResolveModel(selector string) (Model, error) {
	if selector == "" {
		selector = DefaultModel
	}
	m, ok := catalog[selector]
	if !ok {
		return Model{}, apperror.ValidationFailed("model", fmt.Sprintf("unknown model %q", selector))
	}
	return m, nil
}

// Models lists the catalogue ordered by cost, then selector.
func Models() []Model {
	out := make([]Model, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].Selector < out[j].Selector
	})
	return out
}
