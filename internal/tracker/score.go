package tracker

import "github.com/shopspring/decimal"

var (
	ten          = decimal.NewFromInt(10)
	hundred      = decimal.NewFromInt(100)
	three        = decimal.NewFromInt(3)
	multTopMint  = decimal.NewFromFloat(2.5)
	multLowTen   = decimal.NewFromInt(3)
	multLowHun   = decimal.NewFromFloat(1.5)
	multSerial1  = decimal.NewFromInt(10)
	multJersey   = decimal.NewFromInt(5)
	outlierScale = decimal.NewFromFloat(1.5)
)

// ScoreInput carries everything the deal score depends on. Average is zero
// when the edition has no sale history.
type ScoreInput struct {
	Price        decimal.Decimal
	Floor        decimal.Decimal
	Average      decimal.Decimal
	Serial       int64
	MaxMint      int64
	JerseyNumber int64
}

// DealScore rates how attractive a listing is relative to an estimated fair
// value, as a percentage rounded to one decimal place. Higher is better; a
// listing priced exactly at fair value scores 0 and an overpriced one goes
// negative.
//
// The fair value is the effective floor scaled by a rarity multiplier. When
// the floor sits more than three times above the recent average sale price it
// is treated as an outlier and capped at 1.5x the average.
func DealScore(in ScoreInput) decimal.Decimal {
	floor := effectiveFloor(in.Floor, in.Average)
	if !floor.IsPositive() {
		return decimal.Zero
	}

	estimated := floor.Mul(rarityMultiplier(in.Serial, in.MaxMint, in.JerseyNumber))
	return estimated.Sub(in.Price).Div(estimated).Mul(hundred).Round(1)
}

func effectiveFloor(floor, average decimal.Decimal) decimal.Decimal {
	if average.IsZero() {
		return floor
	}
	if floor.GreaterThan(average.Mul(three)) {
		return average.Mul(outlierScale)
	}
	if floor.LessThan(average) {
		return floor
	}
	return average
}

// rarityMultiplier picks the first matching rule, highest priority first.
func rarityMultiplier(serial, maxMint, jerseyNumber int64) decimal.Decimal {
	switch {
	case serial == 1:
		return multSerial1
	case jerseyNumber > 0 && serial == jerseyNumber:
		return multJersey
	case maxMint > 0 && serial == maxMint:
		return multTopMint
	case serial > 0 && serial <= 10:
		return multLowTen
	case serial > 0 && serial <= 100:
		return multLowHun
	default:
		return decimal.NewFromInt(1)
	}
}
