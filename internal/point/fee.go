package point

import (
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/config"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

// Fee is one computed parking charge with its pricing breakdown.
type Fee struct {
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"` // hour | day | week
	Units  int64  `json:"units"`
	Rate   int64  `json:"rate"`
}

const (
	feeDay  = 24 * time.Hour
	feeWeek = 7 * feeDay
)

// CalculateFee prices an elapsed stay against one vehicle's rate tier.
// The tiers are mutually exclusive, largest unit first: a stay of a
// week or more is billed in whole weeks, a day or more in whole days,
// anything shorter in whole hours with a one hour minimum. Partial
// units always round up. The charge never decreases as the stay grows:
// when a tier's rate undercuts what the lower tier already reached at
// its ceiling, the amount is clamped to that ceiling.
func CalculateFee(elapsed time.Duration, tier config.RateTier) Fee {
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case elapsed >= feeWeek:
		weeks := ceilDiv(elapsed, feeWeek)
		amount := clampFloor(weeks*tier.Weekly, dayCeiling(tier))
		return Fee{Amount: amount, Unit: "week", Units: weeks, Rate: tier.Weekly}
	case elapsed >= feeDay:
		days := ceilDiv(elapsed, feeDay)
		amount := clampFloor(days*tier.Daily, hourCeiling(tier))
		return Fee{Amount: amount, Unit: "day", Units: days, Rate: tier.Daily}
	default:
		hours := ceilDiv(elapsed, time.Hour)
		if hours < 1 {
			hours = 1
		}
		return Fee{Amount: hours * tier.Hourly, Unit: "hour", Units: hours, Rate: tier.Hourly}
	}
}

// hourCeiling is the largest charge the hourly tier can produce.
func hourCeiling(tier config.RateTier) int64 {
	return 24 * tier.Hourly
}

// dayCeiling is the largest charge the daily tier can produce,
// including its own hourly clamp.
func dayCeiling(tier config.RateTier) int64 {
	c := 7 * tier.Daily
	if h := hourCeiling(tier); h > c {
		c = h
	}
	return c
}

func clampFloor(amount, floor int64) int64 {
	if amount < floor {
		return floor
	}
	return amount
}

func ceilDiv(d, unit time.Duration) int64 {
	n := int64(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}

// RateFor resolves the rate tier for a vehicle type, falling back to
// the node's default vehicle type for plates the backend classified
// with a type this node has no table entry for.
func RateFor(rates config.RatesConfig, vehicleType, fallback string) (config.RateTier, error) {
	if tier, ok := rates.Vehicles[vehicleType]; ok {
		return tier, nil
	}
	if tier, ok := rates.Vehicles[fallback]; ok {
		return tier, nil
	}
	return config.RateTier{}, errors.Newf(errors.ErrInvalidParam, "no rate for vehicle type %q", vehicleType)
}
