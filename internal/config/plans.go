package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	AccountTypeBrand      = "brand"
	AccountTypeInfluencer = "influencer"
	AccountTypeGuest      = "guest"
)

// Plan is one entry of an account type's plan ladder.
type Plan struct {
	Code    string `mapstructure:"code"`
	Rank    int    `mapstructure:"rank"`
	PriceID string `mapstructure:"price_id"`
	// AffiliationLimit caps active affiliations; zero means unmetered.
	AffiliationLimit int `mapstructure:"affiliation_limit"`
}

func (p Plan) Metered() bool {
	return p.AffiliationLimit > 0
}

// PlanCatalog holds the fixed plan ordering per account type.
type PlanCatalog struct {
	Plans map[string][]Plan `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: map[string][]Plan{
			AccountTypeInfluencer: {
				{Code: "free", Rank: 0, AffiliationLimit: 10},
				{Code: "creator", Rank: 1, PriceID: "price_creator", AffiliationLimit: 100},
				{Code: "pro", Rank: 2, PriceID: "price_pro"},
			},
			AccountTypeBrand: {
				{Code: "free", Rank: 0},
				{Code: "growth", Rank: 1, PriceID: "price_growth"},
				{Code: "scale", Rank: 2, PriceID: "price_scale"},
			},
			AccountTypeGuest: {
				{Code: "free", Rank: 0},
			},
		},
	}
}

// Lookup returns the plan with the given code for an account type.
func (c PlanCatalog) Lookup(accountType, code string) (Plan, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, plan := range c.Plans[normalizeAccountType(accountType)] {
		if plan.Code == code {
			return plan, true
		}
	}
	return Plan{}, false
}

// DefaultPlan returns the lowest ranked plan, which users fall back to when a
// subscription ends.
func (c PlanCatalog) DefaultPlan(accountType string) Plan {
	plans := c.Plans[normalizeAccountType(accountType)]
	if len(plans) == 0 {
		return Plan{Code: "free"}
	}
	lowest := plans[0]
	for _, plan := range plans[1:] {
		if plan.Rank < lowest.Rank {
			lowest = plan
		}
	}
	return lowest
}

// ByPriceID resolves a gateway price back to its account type and plan.
func (c PlanCatalog) ByPriceID(priceID string) (string, Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return "", Plan{}, false
	}
	accountTypes := make([]string, 0, len(c.Plans))
	for accountType := range c.Plans {
		accountTypes = append(accountTypes, accountType)
	}
	sort.Strings(accountTypes)
	for _, accountType := range accountTypes {
		for _, plan := range c.Plans[accountType] {
			if plan.PriceID == priceID {
				return accountType, plan, true
			}
		}
	}
	return "", Plan{}, false
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder wraps a fixed catalog without file watching.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("config.plans")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/affiliora")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AFFILIORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("plan catalog file not found, using defaults")
		return NewStaticPlanCatalogHolder(DefaultPlanCatalog()), nil
	}

	catalog, err := decodePlanCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPlanCatalogHolder(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePlanCatalog(v)
		if err != nil {
			log.Warn("plan catalog reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func decodePlanCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return PlanCatalog{}, err
	}
	normalized := PlanCatalog{Plans: make(map[string][]Plan, len(catalog.Plans))}
	for accountType, plans := range catalog.Plans {
		for _, plan := range plans {
			plan.Code = strings.ToLower(strings.TrimSpace(plan.Code))
			plan.PriceID = strings.TrimSpace(plan.PriceID)
			normalized.Plans[normalizeAccountType(accountType)] = append(normalized.Plans[normalizeAccountType(accountType)], plan)
		}
	}
	if err := validatePlanCatalog(normalized); err != nil {
		return PlanCatalog{}, err
	}
	return normalized, nil
}

func validatePlanCatalog(c PlanCatalog) error {
	if len(c.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	prices := map[string]string{}
	for accountType, plans := range c.Plans {
		if len(plans) == 0 {
			return fmt.Errorf("plans.%s cannot be empty", accountType)
		}
		codes := map[string]struct{}{}
		ranks := map[int]struct{}{}
		for _, plan := range plans {
			if plan.Code == "" {
				return fmt.Errorf("plans.%s has a plan without code", accountType)
			}
			if _, dup := codes[plan.Code]; dup {
				return fmt.Errorf("plans.%s.%s is declared twice", accountType, plan.Code)
			}
			if _, dup := ranks[plan.Rank]; dup {
				return fmt.Errorf("plans.%s has duplicate rank %d", accountType, plan.Rank)
			}
			if plan.AffiliationLimit < 0 {
				return fmt.Errorf("plans.%s.%s affiliation_limit must not be negative", accountType, plan.Code)
			}
			if plan.PriceID != "" {
				if owner, dup := prices[plan.PriceID]; dup {
					return fmt.Errorf("price %s is used by %s and %s.%s", plan.PriceID, owner, accountType, plan.Code)
				}
				prices[plan.PriceID] = accountType + "." + plan.Code
			}
			codes[plan.Code] = struct{}{}
			ranks[plan.Rank] = struct{}{}
		}
	}
	return nil
}

func normalizeAccountType(accountType string) string {
	return strings.ToLower(strings.TrimSpace(accountType))
}
