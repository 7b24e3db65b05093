// Package forecast predicts a venue's customer count, average spend and sales
// for a target day from weighted historical analogies: past days in the same
// seasonal period that fell on the same weekday.
package forecast

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
)

// DefaultFlatFeeWindowDays is the trailing window for flat-fee channels that do not set their own
const DefaultFlatFeeWindowDays = 90

var (
	weightRecent   = decimal.RequireFromString("1.05")
	weightTwoYears = decimal.RequireFromString("1.03")
	weightOlder    = decimal.NewFromInt(1)
)

// RecencyWeight returns the weight of a record yearsAgo calendar years before the target
func RecencyWeight(yearsAgo int) decimal.Decimal {
	switch {
	case yearsAgo <= 1:
		return weightRecent
	case yearsAgo == 2:
		return weightTwoYears
	default:
		return weightOlder
	}
}

// Engine is a pure forecaster. It holds no state beyond its settings and is
// safe for concurrent use over shared read-only record slices.
type Engine struct {
	scheme            calendar.Scheme
	flatFeeWindowDays int
}

// NewEngine creates an engine matching on scheme. A non-positive window falls back to 90 days.
func NewEngine(scheme calendar.Scheme, flatFeeWindowDays int) *Engine {
	if scheme == "" {
		scheme = calendar.SchemeSolarTerm
	}
	if flatFeeWindowDays <= 0 {
		flatFeeWindowDays = DefaultFlatFeeWindowDays
	}
	return &Engine{scheme: scheme, flatFeeWindowDays: flatFeeWindowDays}
}

// Scheme returns the matching scheme in use
func (e *Engine) Scheme() calendar.Scheme {
	return e.scheme
}

// sample is one matched day reduced to the quantities the estimator needs
type sample struct {
	date   time.Time
	count  int64
	sales  int64
	weight decimal.Decimal
}

// Forecast predicts the venue-level totals for target from records, which
// should be the venue's daily totals (see models.AggregateDaily) with any
// per-channel actuals in ChannelBreakdown.
func (e *Engine) Forecast(target time.Time, profile *models.VenueProfile, records []models.DailyRecord) (models.ForecastResult, error) {
	if err := checkInputs(target, profile); err != nil {
		return models.ForecastResult{}, err
	}
	target = calendar.DateOnly(target)
	period := calendar.PeriodOf(target, e.scheme)

	result := e.newResult(target, profile, "", period)

	matched := e.match(target, period, records)
	samples := make([]sample, 0, len(matched))
	for _, r := range matched {
		samples = append(samples, sample{
			date:   calendar.DateOnly(r.Date),
			count:  r.ActualCustomerCount,
			sales:  r.ActualSales,
			weight: RecencyWeight(calendar.YearsBetween(r.Date, target)),
		})
	}
	fill(&result, samples)

	result.Channels = e.channelBreakdown(target, profile, matched, records)
	return result, nil
}

// ForecastChannel predicts one channel from its own daily series. Flat-fee
// channels use the trailing window mean; all others use the weighted
// period and weekday match.
func (e *Engine) ForecastChannel(target time.Time, profile *models.VenueProfile, channelID string, records []models.DailyRecord) (models.ForecastResult, error) {
	if err := checkInputs(target, profile); err != nil {
		return models.ForecastResult{}, err
	}
	ch, ok := profile.Channel(channelID)
	if !ok {
		return models.ForecastResult{}, &models.ConfigurationError{
			VenueID: profile.ID,
			Reason:  "channel " + channelID + " not configured",
		}
	}

	target = calendar.DateOnly(target)
	period := calendar.PeriodOf(target, e.scheme)
	result := e.newResult(target, profile, ch.ID, period)

	if ch.FlatFee {
		result.Method = models.MethodTrailingFlat
		window := e.trailing(target, e.windowFor(ch), records, func(r models.DailyRecord) (models.ChannelActuals, bool) {
			return models.ChannelActuals{Sales: r.ActualSales, Count: r.ActualCustomerCount}, true
		})
		fillFlat(&result, window)
		return result, nil
	}

	matched := e.match(target, period, records)
	samples := make([]sample, 0, len(matched))
	for _, r := range matched {
		samples = append(samples, sample{
			date:   calendar.DateOnly(r.Date),
			count:  r.ActualCustomerCount,
			sales:  r.ActualSales,
			weight: RecencyWeight(calendar.YearsBetween(r.Date, target)),
		})
	}
	fill(&result, samples)
	return result, nil
}

func checkInputs(target time.Time, profile *models.VenueProfile) error {
	if target.IsZero() {
		return &models.ValidationError{Field: "date", Message: "target date is required"}
	}
	if profile == nil {
		return &models.ConfigurationError{Reason: "venue profile missing"}
	}
	return nil
}

func (e *Engine) newResult(target time.Time, profile *models.VenueProfile, channelID string, period calendar.Period) models.ForecastResult {
	return models.ForecastResult{
		VenueID:           profile.ID,
		ChannelID:         channelID,
		TargetDate:        target,
		Scheme:            string(e.scheme),
		TargetPeriod:      period.Name,
		Method:            models.MethodPeriodWeekday,
		WeekdayMultiplier: profile.MultiplierFor(target.Weekday()),
		MatchedRecords:    []models.MatchedRecord{},
	}
}

// match returns records in the target's period and weekday with positive
// sales dated strictly before target, oldest first.
func (e *Engine) match(target time.Time, period calendar.Period, records []models.DailyRecord) []models.DailyRecord {
	weekday := target.Weekday()
	var out []models.DailyRecord
	for _, r := range records {
		d := calendar.DateOnly(r.Date)
		if !d.Before(target) || r.ActualSales <= 0 {
			continue
		}
		if d.Weekday() != weekday {
			continue
		}
		if calendar.PeriodOf(d, e.scheme).Index != period.Index {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// fill computes count first, then spend, then sales as their product.
func fill(result *models.ForecastResult, samples []sample) {
	result.MatchCount = len(samples)
	if len(samples) == 0 {
		return
	}
	for _, s := range samples {
		result.MatchedRecords = append(result.MatchedRecords, models.MatchedRecord{
			Date:   s.date,
			Weight: s.weight.InexactFloat64(),
		})
	}
	result.PredictedCustomerCount, result.PredictedAverageSpend = estimate(samples)
	result.PredictedSales = result.PredictedCustomerCount * result.PredictedAverageSpend
}

// estimate returns the weighted mean count over all samples and the weighted
// mean per-head spend over samples with a positive count, both rounded half up.
func estimate(samples []sample) (int64, int64) {
	var countSum, countWeights, spendSum, spendWeights decimal.Decimal
	for _, s := range samples {
		countSum = countSum.Add(decimal.NewFromInt(s.count).Mul(s.weight))
		countWeights = countWeights.Add(s.weight)
		if s.count > 0 {
			perHead := decimal.NewFromInt(s.sales).Div(decimal.NewFromInt(s.count))
			spendSum = spendSum.Add(perHead.Mul(s.weight))
			spendWeights = spendWeights.Add(s.weight)
		}
	}
	count := roundedMean(countSum, countWeights)
	spend := roundedMean(spendSum, spendWeights)
	return count, spend
}

func roundedMean(sum, weights decimal.Decimal) int64 {
	if weights.IsZero() {
		return 0
	}
	return sum.Div(weights).Round(0).IntPart()
}

// channelBreakdown forecasts every channel seen in the profile or the matched
// records. Period channels reuse the venue match set with uniform weights.
func (e *Engine) channelBreakdown(target time.Time, profile *models.VenueProfile, matched, all []models.DailyRecord) map[string]models.ChannelForecast {
	channels := make(map[string]models.Channel, len(profile.Channels))
	for _, ch := range profile.Channels {
		channels[ch.ID] = ch
	}
	for _, r := range matched {
		for id := range r.ChannelBreakdown {
			if _, ok := channels[id]; !ok {
				channels[id] = models.Channel{ID: id}
			}
		}
	}
	if len(channels) == 0 {
		return nil
	}

	out := make(map[string]models.ChannelForecast, len(channels))
	for id, ch := range channels {
		if ch.FlatFee {
			window := e.trailing(target, e.windowFor(ch), all, func(r models.DailyRecord) (models.ChannelActuals, bool) {
				a, ok := r.ChannelBreakdown[id]
				return a, ok
			})
			var res models.ForecastResult
			fillFlat(&res, window)
			out[id] = models.ChannelForecast{
				ChannelID:              id,
				Method:                 models.MethodTrailingFlat,
				PredictedCustomerCount: res.PredictedCustomerCount,
				PredictedAverageSpend:  res.PredictedAverageSpend,
				PredictedSales:         res.PredictedSales,
				MatchCount:             res.MatchCount,
			}
			continue
		}

		var samples []sample
		for _, r := range matched {
			a, ok := r.ChannelBreakdown[id]
			if !ok {
				continue
			}
			samples = append(samples, sample{date: r.Date, count: a.Count, sales: a.Sales, weight: weightOlder})
		}
		cf := models.ChannelForecast{ChannelID: id, Method: models.MethodPeriodWeekday, MatchCount: len(samples)}
		if len(samples) > 0 {
			cf.PredictedCustomerCount, cf.PredictedAverageSpend = estimate(samples)
			cf.PredictedSales = cf.PredictedCustomerCount * cf.PredictedAverageSpend
		}
		out[id] = cf
	}
	return out
}

func (e *Engine) windowFor(ch models.Channel) int {
	if ch.FlatFeeWindowDays > 0 {
		return ch.FlatFeeWindowDays
	}
	return e.flatFeeWindowDays
}

type windowDay struct {
	date    time.Time
	actuals models.ChannelActuals
}

// trailing collects the days in [target-days, target) for which pick yields a
// value with positive sales, oldest first.
func (e *Engine) trailing(target time.Time, days int, records []models.DailyRecord, pick func(models.DailyRecord) (models.ChannelActuals, bool)) []windowDay {
	start := target.AddDate(0, 0, -days)
	var out []windowDay
	for _, r := range records {
		d := calendar.DateOnly(r.Date)
		if d.Before(start) || !d.Before(target) {
			continue
		}
		a, ok := pick(r)
		if !ok || a.Sales <= 0 {
			continue
		}
		out = append(out, windowDay{date: d, actuals: a})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// fillFlat sets sales to the plain mean of the window's sales. Count is the
// mean count and spend is sales per head when there are heads to divide by,
// so the count times spend product does not hold for flat fees.
func fillFlat(result *models.ForecastResult, window []windowDay) {
	result.MatchCount = len(window)
	if result.MatchedRecords == nil {
		result.MatchedRecords = []models.MatchedRecord{}
	}
	if len(window) == 0 {
		return
	}
	var sales, count decimal.Decimal
	for _, w := range window {
		sales = sales.Add(decimal.NewFromInt(w.actuals.Sales))
		count = count.Add(decimal.NewFromInt(w.actuals.Count))
		result.MatchedRecords = append(result.MatchedRecords, models.MatchedRecord{Date: w.date, Weight: 1})
	}
	n := decimal.NewFromInt(int64(len(window)))
	result.PredictedSales = roundedMean(sales, n)
	result.PredictedCustomerCount = roundedMean(count, n)
	if result.PredictedCustomerCount > 0 {
		result.PredictedAverageSpend = roundedMean(decimal.NewFromInt(result.PredictedSales), decimal.NewFromInt(result.PredictedCustomerCount))
	}
}
