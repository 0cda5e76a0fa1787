package tier

import (
	"encoding/json"
	"io/ioutil"

	extErrors "github.com/pkg/errors"
)

// FreeTierID is the tier every user falls back to when they have no
// subscription row, or when their subscription has been reset by the
// lifecycle sync.
const FreeTierID = "free"

// UnlimitedAllowance is the sentinel for "no monthly cap" on an action.
const UnlimitedAllowance int64 = -1

// Allowances maps a feature action key (e.g. "photo", "gif") to its monthly
// quota. UnlimitedAllowance means no cap.
type Allowances map[string]int64

// Tier describes a subscription plan. The paid ones correspond to a Product
// and a recurring Price on Stripe.
type Tier struct {
	ID           string     `json:"id"`           // Unique key (e.g. "free", "pro", "premium")
	Name         string     `json:"name"`         // Name shown to the user and on Stripe
	Description  string     `json:"description"`  // Shown to the user
	Allowances   Allowances `json:"allowances"`   // Monthly quota per action key
	Features     []string   `json:"features"`     // Marketing bullet points, no behavioral role
	ProductID    string     `json:"productId"`    // Corresponds to Stripe's Product ID
	PriceID      string     `json:"priceId"`      // Corresponds to Stripe's Price ID
	PriceInCents float64    `json:"priceInCents"` // Monthly price in cents. 0 means not purchasable (free tier)
	Currency     string     `json:"currency"`     // The ISO currency code (e.g. usd)
	Interval     string     `json:"interval"`     // Billing frequency (e.g. month)
	Retired      bool       `json:"retired"`      // Flag if the Tier is no longer for sale (Archived on Stripe)
}

// Allowance returns the monthly quota for the given action key. Keys not in
// the mapping get a zero allowance so a caller bug can never grant access.
func (t Tier) Allowance(action string) int64 {
	if t.Allowances == nil {
		return 0
	}
	limit, ok := t.Allowances[action]
	if !ok {
		return 0
	}
	return limit
}

// Purchasable reports if the tier can be bought through checkout.
func (t Tier) Purchasable() bool {
	return t.PriceInCents > 0 && !t.Retired
}

// Catalog holds the defined tiers. It is read-only reference data: seeded
// from JSON at deploy time, changes require a new deploy.
type Catalog struct {
	tierArray      []Tier
	tierIDIndexMap map[string]int
}

// LoadCatalog will read the tier definitions from a JSON file. See
// tiers.json for the shape. ProductID/PriceID fields are populated against
// Stripe via SynchronizeStripe.
func LoadCatalog(filename string) (*Catalog, error) {
	jsonBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open tiers JSON file")
	}
	tiers := make([]Tier, 0, 3)
	if err := json.Unmarshal(jsonBytes, &tiers); err != nil {
		return nil, extErrors.Wrap(err, "Invalid tiers JSON file")
	}
	return NewCatalog(tiers)
}

// NewCatalog constructs a Catalog from already defined tiers.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	indexMap := make(map[string]int)
	for index, t := range tiers {
		if len(t.ID) == 0 {
			return nil, extErrors.Errorf("tier at index %d has no id", index)
		}
		if indexMap[t.ID] != 0 {
			return nil, extErrors.Errorf("duplicate tier id %s", t.ID)
		}
		indexMap[t.ID] = index + 1
	}
	if indexMap[FreeTierID] == 0 {
		return nil, extErrors.Errorf("catalog must define the %s tier", FreeTierID)
	}
	return &Catalog{
		tierArray:      tiers,
		tierIDIndexMap: indexMap,
	}, nil
}

// List returns the defined tiers.
func (c *Catalog) List() []Tier {
	return c.tierArray
}

// Get returns the tier with the given id. An empty id resolves to the free
// tier; an unknown id returns false so the caller can decide the fallback.
func (c *Catalog) Get(tierID string) (Tier, bool) {
	if len(tierID) == 0 {
		tierID = FreeTierID
	}
	index := c.tierIDIndexMap[tierID]
	if index == 0 {
		return Tier{}, false
	}
	return c.tierArray[index-1], true
}

// Free returns the free tier.
func (c *Catalog) Free() Tier {
	t, _ := c.Get(FreeTierID)
	return t
}

// FindByPriceID returns the tier whose Stripe Price matches. Used by the
// lifecycle sync to translate a Stripe subscription back into a tier id.
func (c *Catalog) FindByPriceID(priceID string) (Tier, bool) {
	if len(priceID) == 0 {
		return Tier{}, false
	}
	for _, t := range c.tierArray {
		if t.PriceID == priceID {
			return t, true
		}
	}
	return Tier{}, false
}
