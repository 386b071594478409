package monitor

import (
	"math"

	"github.com/riddle022/farmavision/pkg/upstream"
)

// Status positions the user's own price against the market.
type Status string

const (
	// StatusNoPrice means the comparison could not be made: the user has
	// not priced the product or the market offered no usable prices.
	StatusNoPrice Status = "no_price"
	// StatusCompetitive means the own price undercuts the market average.
	StatusCompetitive Status = "competitive"
	// StatusHigh means the own price tops every competitor.
	StatusHigh Status = "high"
	// StatusModerate covers the band in between.
	StatusModerate Status = "moderate"
)

// Trend says where the own price sits relative to the market average, with a
// dead zone so that noise does not flap the indicator.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// trendDeadZonePct is the band, in percent, inside which a price gap is
// reported as neutral with zero change.
const trendDeadZonePct = 2.0

// PositivePrices extracts the prices that count for statistics.
func PositivePrices(offers []upstream.Offer) []float64 {
	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			prices = append(prices, o.Price)
		}
	}
	return prices
}

// Summarize returns the lowest, highest and mean of the given prices. All
// three are nil when the slice is empty; the mean is rounded to 2 decimals.
func Summarize(prices []float64) (lowest, highest, average *float64) {
	if len(prices) == 0 {
		return nil, nil, nil
	}
	min, max, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	avg := round2(sum / float64(len(prices)))
	return &min, &max, &avg
}

// Volatility measures the market spread as (max-min)/avg*100, rounded to 1
// decimal. A market without usable prices (or with a non-positive average)
// has volatility 0 by definition.
func Volatility(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	min, max, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	avg := sum / float64(len(prices))
	if avg <= 0 {
		return 0
	}
	return round1((max - min) / avg * 100)
}

// Classify maps the own price against the market statistics.
func Classify(own, average, highest *float64) Status {
	if own == nil || average == nil {
		return StatusNoPrice
	}
	if *own < *average {
		return StatusCompetitive
	}
	top := average
	if highest != nil {
		top = highest
	}
	if *own > *top {
		return StatusHigh
	}
	return StatusModerate
}

// TrendOf returns the trend indicator and the percent gap between the own
// price and the market average. Gaps inside the dead zone come back as
// neutral with a change of exactly 0.
func TrendOf(own, average *float64) (Trend, float64) {
	if own == nil || average == nil || *average <= 0 {
		return TrendNeutral, 0
	}
	change := (*own - *average) / *average * 100
	if math.Abs(change) < trendDeadZonePct {
		return TrendNeutral, 0
	}
	if change > 0 {
		return TrendUp, round2(change)
	}
	return TrendDown, round2(change)
}

// distinctEstablishments counts how many differently named sellers appear in
// the offer list, using the same folding as the competitor registry.
func distinctEstablishments(offers []upstream.Offer, fold func(string) string) int {
	seen := make(map[string]struct{}, len(offers))
	for _, o := range offers {
		if key := fold(o.Establishment.Name); key != "" {
			seen[key] = struct{}{}
		}
	}
	return len(seen)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
