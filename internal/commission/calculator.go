// Package commission splits an order's value between the brands selling the
// items and the influencers credited for them.
package commission

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliora/internal/config"
)

type CoverageType string

const (
	CoverageNone        CoverageType = "none"
	CoverageAffiliation CoverageType = "affiliation"
	CoverageSponsorship CoverageType = "sponsorship"
)

type Role string

const (
	RoleInfluencer Role = "influencer"
	RoleBrand      Role = "brand"
)

var (
	ErrNoItems        = errors.New("commission_no_items")
	ErrInvalidItem    = errors.New("commission_invalid_item")
	ErrInvalidPercent = errors.New("commission_invalid_percent")
	ErrNoCoverage     = errors.New("commission_no_coverage")
)

var hundred = decimal.NewFromInt(100)

// Coverage is the resolved commission basis of one order item.
type Coverage struct {
	Type        CoverageType
	ID          snowflake.ID
	RecipientID snowflake.ID
	Percent     decimal.Decimal
}

type Item struct {
	ProductID snowflake.ID
	BrandID   snowflake.ID
	Quantity  int64
	UnitPrice int64
	Coverage  *Coverage
}

// Split is one recipient's share in integer cents.
type Split struct {
	RecipientID snowflake.ID `json:"recipient_id"`
	Role        Role         `json:"role"`
	Amount      int64        `json:"amount"`
}

type Calculator struct {
	strict bool
}

func NewCalculator(cfg config.Config) *Calculator {
	return &Calculator{strict: cfg.Commission.Strict}
}

// NewStrictCalculator rejects orders with uncovered items.
func NewStrictCalculator() *Calculator {
	return &Calculator{strict: true}
}

// Calculate floors each item's commission to whole cents and credits the
// brand with the remainder of that item, so the splits always sum to the
// order total. Influencer entries come first, each role in order of first
// appearance.
func (c *Calculator) Calculate(items []Item) ([]Split, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	influencers := newLedger(RoleInfluencer)
	brands := newLedger(RoleBrand)

	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPrice < 0 || item.BrandID == 0 {
			return nil, ErrInvalidItem
		}
		gross := item.UnitPrice * item.Quantity

		var commission int64
		if covered(item.Coverage) {
			pct := item.Coverage.Percent
			if pct.IsNegative() || pct.GreaterThan(hundred) {
				return nil, ErrInvalidPercent
			}
			commission = decimal.NewFromInt(gross).Mul(pct).Div(hundred).Floor().IntPart()
			influencers.add(item.Coverage.RecipientID, commission)
		} else if c.strict {
			return nil, ErrNoCoverage
		}

		brands.add(item.BrandID, gross-commission)
	}

	splits := make([]Split, 0, len(influencers.order)+len(brands.order))
	splits = append(splits, influencers.splits()...)
	splits = append(splits, brands.splits()...)
	return splits, nil
}

// Total sums split amounts.
func Total(splits []Split) int64 {
	var total int64
	for _, s := range splits {
		total += s.Amount
	}
	return total
}

func covered(c *Coverage) bool {
	return c != nil && c.Type != CoverageNone && c.Type != "" && c.RecipientID != 0
}

type ledger struct {
	role    Role
	order   []snowflake.ID
	amounts map[snowflake.ID]int64
}

func newLedger(role Role) *ledger {
	return &ledger{role: role, amounts: map[snowflake.ID]int64{}}
}

func (l *ledger) add(id snowflake.ID, amount int64) {
	if _, ok := l.amounts[id]; !ok {
		l.order = append(l.order, id)
	}
	l.amounts[id] += amount
}

func (l *ledger) splits() []Split {
	out := make([]Split, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, Split{RecipientID: id, Role: l.role, Amount: l.amounts[id]})
	}
	return out
}
