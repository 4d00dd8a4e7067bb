package config

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Milestone is a one-time reward unlocked by lifetime pair count. A milestone
// with Amount 0 and a Prize is non-monetary.
type Milestone struct {
	Name   string  `yaml:"name"`
	Pairs  int     `yaml:"pairs"`
	Amount float64 `yaml:"amount"`
	Prize  string  `yaml:"prize"`
}

func (m Milestone) IsMonetary() bool {
	return m.Amount > 0
}

// CompensationConfig is the compensation plan. Per-level tables are indexed
// from level 1 at position 0.
type CompensationConfig struct {
	FallbackParticipantID primitive.ObjectID `yaml:"fallback_participant_id"`
	MaxUplineDepth        int                `yaml:"max_upline_depth"`

	RegistrationAmount float64   `yaml:"registration_amount"`
	ReferralPercents   []float64 `yaml:"referral_percents"`
	DirectRequirements []int     `yaml:"direct_requirements"`

	PairBonus    float64     `yaml:"pair_bonus"`
	DailyPairCap int         `yaml:"daily_pair_cap"`
	Milestones   []Milestone `yaml:"milestones"`

	MinInvestment             float64   `yaml:"min_investment"`
	LockInMonths              int       `yaml:"lock_in_months"`
	MonthlyROIRate            float64   `yaml:"monthly_roi_rate"`
	BonusScheduleMonths       int       `yaml:"bonus_schedule_months"`
	InvestmentOneTimePercents []float64 `yaml:"investment_one_time_percents"`
	InvestmentMonthlyPercents []float64 `yaml:"investment_monthly_percents"`
}

const defaultFallbackParticipantID = "64b000000000000000000001"

func DefaultMilestones() []Milestone {
	return []Milestone{
		{Name: "Starter", Pairs: 10, Amount: 2500},
		{Name: "Bronze", Pairs: 25, Amount: 7500},
		{Name: "Silver", Pairs: 50, Prize: "Smart Watch"},
		{Name: "Gold", Pairs: 100, Amount: 25000},
		{Name: "Platinum", Pairs: 250, Prize: "International Trip"},
		{Name: "Diamond", Pairs: 500, Amount: 100000},
	}
}

func loadCompensationConfig() *CompensationConfig {
	fallback, err := primitive.ObjectIDFromHex(getEnv("FALLBACK_PARTICIPANT_ID", defaultFallbackParticipantID))
	if err != nil {
		fallback = primitive.NilObjectID
	}

	return &CompensationConfig{
		FallbackParticipantID: fallback,
		MaxUplineDepth:        getEnvAsInt("MAX_UPLINE_DEPTH", 10),

		RegistrationAmount: getEnvAsFloat64("REGISTRATION_AMOUNT", 3600),
		ReferralPercents: getEnvAsFloat64Slice("REFERRAL_PERCENTS",
			[]float64{0.10, 0.03, 0.02, 0.01, 0.01, 0.01, 0.005, 0.005, 0.005, 0.005}),
		DirectRequirements: getEnvAsIntSlice("DIRECT_REQUIREMENTS",
			[]int{0, 2, 3, 3, 4, 4, 5, 5, 6, 6}),

		PairBonus:    getEnvAsFloat64("PAIR_BONUS", 300),
		DailyPairCap: getEnvAsInt("DAILY_PAIR_CAP", 60),
		Milestones:   DefaultMilestones(),

		MinInvestment:       getEnvAsFloat64("MIN_INVESTMENT", 5000),
		LockInMonths:        getEnvAsInt("LOCK_IN_MONTHS", 24),
		MonthlyROIRate:      getEnvAsFloat64("MONTHLY_ROI_RATE", 0.04),
		BonusScheduleMonths: getEnvAsInt("BONUS_SCHEDULE_MONTHS", 6),
		InvestmentOneTimePercents: getEnvAsFloat64Slice("INVESTMENT_ONE_TIME_PERCENTS",
			[]float64{0.05, 0.02, 0.01, 0.01, 0.005, 0.005, 0.005, 0.005, 0.005, 0.005}),
		InvestmentMonthlyPercents: getEnvAsFloat64Slice("INVESTMENT_MONTHLY_PERCENTS",
			[]float64{0.10, 0.05, 0.03, 0.02, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01}),
	}
}

func (c *CompensationConfig) Validate() error {
	if c.FallbackParticipantID.IsZero() {
		return errors.New("fallback participant id is required")
	}
	if c.MaxUplineDepth <= 0 {
		return errors.New("max upline depth must be positive")
	}
	tables := map[string]int{
		"referral percents":            len(c.ReferralPercents),
		"direct requirements":          len(c.DirectRequirements),
		"investment one-time percents": len(c.InvestmentOneTimePercents),
		"investment monthly percents":  len(c.InvestmentMonthlyPercents),
	}
	for name, n := range tables {
		if n < c.MaxUplineDepth {
			return fmt.Errorf("%s cover %d levels, need %d", name, n, c.MaxUplineDepth)
		}
	}
	if c.DailyPairCap <= 0 {
		return errors.New("daily pair cap must be positive")
	}
	if c.LockInMonths <= 0 || c.BonusScheduleMonths <= 0 {
		return errors.New("lock-in and bonus schedule months must be positive")
	}
	for i := 1; i < len(c.Milestones); i++ {
		if c.Milestones[i].Pairs < c.Milestones[i-1].Pairs {
			return fmt.Errorf("milestone %q is out of pair order", c.Milestones[i].Name)
		}
	}
	return nil
}

func levelValue[T any](table []T, level int) T {
	var zero T
	if level < 1 || level > len(table) {
		return zero
	}
	return table[level-1]
}

func (c *CompensationConfig) ReferralPercent(level int) float64 {
	return levelValue(c.ReferralPercents, level)
}

func (c *CompensationConfig) DirectRequirement(level int) int {
	return levelValue(c.DirectRequirements, level)
}

func (c *CompensationConfig) InvestmentOneTimePercent(level int) float64 {
	return levelValue(c.InvestmentOneTimePercents, level)
}

func (c *CompensationConfig) InvestmentMonthlyPercent(level int) float64 {
	return levelValue(c.InvestmentMonthlyPercents, level)
}
