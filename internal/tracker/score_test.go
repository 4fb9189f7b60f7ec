package tracker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDealScore_SerialOne(t *testing.T) {
	// floor 100, serial 1 => estimated 1000; (1000-100)/1000*100 = 90.0
	score := DealScore(ScoreInput{
		Price:  dec("100"),
		Floor:  dec("100"),
		Serial: 1,
	})
	assert.True(t, score.Equal(dec("90.0")), "got %s", score)
}

func TestDealScore_OutlierFloorSuppressed(t *testing.T) {
	// floor 400 > 3*avg(100) => effective floor 150; serial 500 => x1
	// (150-50)/150*100 = 66.666... => 66.7
	score := DealScore(ScoreInput{
		Price:   dec("50"),
		Floor:   dec("400"),
		Average: dec("100"),
		Serial:  500,
	})
	assert.True(t, score.Equal(dec("66.7")), "got %s", score)
}

func TestDealScore_MinOfFloorAndAverage(t *testing.T) {
	// floor 80 < avg 100 and not an outlier => effective floor 80.
	score := DealScore(ScoreInput{
		Price:   dec("80"),
		Floor:   dec("80"),
		Average: dec("100"),
		Serial:  500,
	})
	assert.True(t, score.IsZero(), "got %s", score)

	// floor 120 > avg 100 but under 3x => effective floor 100.
	score = DealScore(ScoreInput{
		Price:   dec("100"),
		Floor:   dec("120"),
		Average: dec("100"),
		Serial:  500,
	})
	assert.True(t, score.IsZero(), "got %s", score)
}

func TestDealScore_NonPositiveFloorScoresZero(t *testing.T) {
	score := DealScore(ScoreInput{Price: dec("10"), Floor: decimal.Zero, Serial: 5})
	assert.True(t, score.IsZero())
}

func TestDealScore_OverpricedGoesNegative(t *testing.T) {
	// floor 100, serial 200 => x1 => estimated 100; price 150 => -50.0
	score := DealScore(ScoreInput{
		Price:  dec("150"),
		Floor:  dec("100"),
		Serial: 200,
	})
	assert.True(t, score.Equal(dec("-50.0")), "got %s", score)
}

func TestRarityMultiplier_Priority(t *testing.T) {
	cases := []struct {
		name                        string
		serial, maxMint, jersey     int64
		want                        string
	}{
		{"serial one beats jersey", 1, 100, 1, "10"},
		{"jersey beats top mint", 23, 23, 23, "5"},
		{"top mint", 15000, 15000, 0, "2.5"},
		{"low serial ten", 7, 15000, 0, "3"},
		{"low serial hundred", 88, 15000, 0, "1.5"},
		{"common", 5000, 15000, 0, "1"},
		{"jersey zero never matches", 0, 0, 0, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rarityMultiplier(tc.serial, tc.maxMint, tc.jersey)
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}
