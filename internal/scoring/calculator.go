package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the tunable constants of the scoring curve. Only the shape is
// fixed: unanswered < wrong < 0 < partial band < correct band.
type Config struct {
	UnansweredPenalty int `yaml:"unansweredPenalty"`

	CorrectFloor   int `yaml:"correctFloor"`
	CorrectCeiling int `yaml:"correctCeiling"`

	PartialMin      int     `yaml:"partialMin"`
	PartialMax      int     `yaml:"partialMax"`
	PartialSpeedMin float64 `yaml:"partialSpeedMin"`
	LateRatio       float64 `yaml:"lateRatio"`
	LateCap         int     `yaml:"lateCap"`
	PartialFloor    int     `yaml:"partialFloor"`

	WrongBase  int `yaml:"wrongBase"`
	WrongRange int `yaml:"wrongRange"`
}

// DefaultConfig returns the production curve.
func DefaultConfig() Config {
	return Config{
		UnansweredPenalty: 30,
		CorrectFloor:      40,
		CorrectCeiling:    100,
		PartialMin:        5,
		PartialMax:        35,
		PartialSpeedMin:   0.6,
		LateRatio:         1.0 / 3.0,
		LateCap:           10,
		PartialFloor:      2,
		WrongBase:         5,
		WrongRange:        15,
	}
}

// Validate checks that the constants preserve the ordering of the four outcomes.
func (c Config) Validate() error {
	switch {
	case c.CorrectFloor <= 0 || c.CorrectCeiling < c.CorrectFloor:
		return fmt.Errorf("scoring: correct band [%d,%d] must be positive and ordered", c.CorrectFloor, c.CorrectCeiling)
	case c.PartialFloor <= 0:
		return errors.New("scoring: partialFloor must be positive")
	case c.PartialMin < 0 || c.PartialMax < c.PartialMin:
		return fmt.Errorf("scoring: partial band [%d,%d] must be ordered", c.PartialMin, c.PartialMax)
	case c.PartialMax >= c.CorrectFloor || c.PartialFloor >= c.CorrectFloor || c.LateCap >= c.CorrectFloor:
		return errors.New("scoring: partial rewards must stay below correctFloor")
	case c.PartialSpeedMin <= 0 || c.PartialSpeedMin > 1:
		return fmt.Errorf("scoring: partialSpeedMin %.2f must be in (0,1]", c.PartialSpeedMin)
	case c.LateRatio < 0 || c.LateRatio > 1:
		return fmt.Errorf("scoring: lateRatio %.2f must be in [0,1]", c.LateRatio)
	case c.WrongBase <= 0 || c.WrongRange < 0:
		return errors.New("scoring: wrong penalty must be positive")
	case c.UnansweredPenalty <= c.WrongBase+c.WrongRange:
		return fmt.Errorf("scoring: unanswered penalty %d must exceed the largest wrong penalty %d", c.UnansweredPenalty, c.WrongBase+c.WrongRange)
	}
	return nil
}

// Calculator turns a grade and timing into a signed score delta.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Score computes the delta for one submission. maxTime and remaining are seconds.
func (c *Calculator) Score(maxTime, remaining float64, g Grade) int {
	cfg := c.cfg
	if g.Unanswered {
		return -cfg.UnansweredPenalty
	}

	ratio := timeRatio(maxTime, remaining)

	if g.Correct {
		return cfg.CorrectFloor + round(float64(cfg.CorrectCeiling-cfg.CorrectFloor)*ratio)
	}

	if g.Partial > 0 {
		quality := math.Min(float64(g.Partial), 100) / 100
		base := float64(cfg.PartialMin) + float64(cfg.PartialMax-cfg.PartialMin)*quality
		speed := cfg.PartialSpeedMin + (1-cfg.PartialSpeedMin)*ratio
		reward := round(base * speed)
		if ratio < cfg.LateRatio && reward > cfg.LateCap {
			reward = cfg.LateCap
		}
		if reward < cfg.PartialFloor {
			reward = cfg.PartialFloor
		}
		return reward
	}

	return -(cfg.WrongBase + round(float64(cfg.WrongRange)*ratio))
}

// timeRatio is remaining/maxTime with remaining >= 0 and maxTime >= 1. It is
// capped at 1 so a client cannot claim more time than the budget.
func timeRatio(maxTime, remaining float64) float64 {
	if math.IsNaN(remaining) || remaining < 0 {
		remaining = 0
	}
	if math.IsNaN(maxTime) || maxTime < 1 {
		maxTime = 1
	}
	r := remaining / maxTime
	switch {
	case math.IsNaN(r):
		return 0
	case r > 1:
		return 1
	}
	return r
}

func round(v float64) int {
	return int(math.Round(v))
}
