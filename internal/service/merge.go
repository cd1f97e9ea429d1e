package service

import "carmatch/internal/model"

// Merge folds an extraction into the accumulated profile. Scalars present in
// extracted overwrite; set fields are unioned in first-seen order. Merge never
// removes information, and Merge(p, CustomerProfile{}) equals p.
func Merge(current, extracted model.CustomerProfile) model.CustomerProfile {
	out := current

	pick(&out.CustomerName, extracted.CustomerName)
	pick(&out.Budget, extracted.Budget)
	pick(&out.BudgetMin, extracted.BudgetMin)
	pick(&out.BudgetMax, extracted.BudgetMax)
	pick(&out.People, extracted.People)
	pick(&out.Usage, extracted.Usage)
	pick(&out.PrimaryUse, extracted.PrimaryUse)
	pick(&out.RideTier, extracted.RideTier)
	pick(&out.BodyType, extracted.BodyType)
	pick(&out.MinYear, extracted.MinYear)
	pick(&out.MaxKm, extracted.MaxKm)
	pick(&out.Transmission, extracted.Transmission)
	pick(&out.FuelType, extracted.FuelType)
	pick(&out.Color, extracted.Color)
	pick(&out.Brand, extracted.Brand)
	pick(&out.Model, extracted.Model)
	pick(&out.HasTradeIn, extracted.HasTradeIn)
	pick(&out.Urgency, extracted.Urgency)

	out.Priorities = union(current.Priorities, extracted.Priorities)
	out.DealBreakers = union(current.DealBreakers, extracted.DealBreakers)
	return out
}

func pick[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// union returns a fresh deduplicated slice with a's order followed by b's new
// entries. Two empty inputs yield nil.
func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
