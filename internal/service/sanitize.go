package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"carmatch/internal/model"
	"carmatch/internal/utils"
)

// Legal ranges for numeric profile fields.
const (
	minPeople   = 1
	maxPeople   = 10
	minYearSeen = 2000
	maxKmSeen   = 500000
	maxBudget   = 10000000

	maxListItems  = 15
	maxItemLength = 40
	maxTextLength = 30
)

type knownModel struct {
	brand string
	body  string
}

// knownModels maps model names customers mention to their brand and body type.
var knownModels = map[string]knownModel{
	"strada":    {"fiat", model.BodyPickup},
	"toro":      {"fiat", model.BodyPickup},
	"s10":       {"chevrolet", model.BodyPickup},
	"montana":   {"chevrolet", model.BodyPickup},
	"hilux":     {"toyota", model.BodyPickup},
	"ranger":    {"ford", model.BodyPickup},
	"maverick":  {"ford", model.BodyPickup},
	"saveiro":   {"volkswagen", model.BodyPickup},
	"amarok":    {"volkswagen", model.BodyPickup},
	"l200":      {"mitsubishi", model.BodyPickup},
	"triton":    {"mitsubishi", model.BodyPickup},
	"frontier":  {"nissan", model.BodyPickup},
	"oroch":     {"renault", model.BodyPickup},
	"spin":      {"chevrolet", model.BodyMinivan},
	"onix":      {"chevrolet", model.BodyHatch},
	"onix plus": {"chevrolet", model.BodySedan},
	"prisma":    {"chevrolet", model.BodySedan},
	"cruze":     {"chevrolet", model.BodySedan},
	"tracker":   {"chevrolet", model.BodySUV},
	"civic":     {"honda", model.BodySedan},
	"city":      {"honda", model.BodySedan},
	"fit":       {"honda", model.BodyHatch},
	"hr-v":      {"honda", model.BodySUV},
	"hrv":       {"honda", model.BodySUV},
	"corolla":   {"toyota", model.BodySedan},
	"yaris":     {"toyota", model.BodyHatch},
	"sw4":       {"toyota", model.BodySUV},
	"gol":       {"volkswagen", model.BodyHatch},
	"polo":      {"volkswagen", model.BodyHatch},
	"golf":      {"volkswagen", model.BodyHatch},
	"up":        {"volkswagen", model.BodyHatch},
	"virtus":    {"volkswagen", model.BodySedan},
	"jetta":     {"volkswagen", model.BodySedan},
	"t-cross":   {"volkswagen", model.BodySUV},
	"nivus":     {"volkswagen", model.BodySUV},
	"hb20":      {"hyundai", model.BodyHatch},
	"hb20s":     {"hyundai", model.BodySedan},
	"creta":     {"hyundai", model.BodySUV},
	"argo":      {"fiat", model.BodyHatch},
	"mobi":      {"fiat", model.BodyHatch},
	"uno":       {"fiat", model.BodyHatch},
	"cronos":    {"fiat", model.BodySedan},
	"pulse":     {"fiat", model.BodySUV},
	"doblo":     {"fiat", model.BodyMinivan},
	"kwid":      {"renault", model.BodyHatch},
	"sandero":   {"renault", model.BodyHatch},
	"logan":     {"renault", model.BodySedan},
	"duster":    {"renault", model.BodySUV},
	"ka":        {"ford", model.BodyHatch},
	"ecosport":  {"ford", model.BodySUV},
	"march":     {"nissan", model.BodyHatch},
	"versa":     {"nissan", model.BodySedan},
	"kicks":     {"nissan", model.BodySUV},
	"livina":    {"nissan", model.BodyMinivan},
	"compass":   {"jeep", model.BodySUV},
	"renegade":  {"jeep", model.BodySUV},
}

var brandAliases = map[string]string{
	"vw":            "volkswagen",
	"volks":         "volkswagen",
	"wolksvagen":    "volkswagen",
	"gm":            "chevrolet",
	"chevy":         "chevrolet",
	"chev":          "chevrolet",
	"mercedes":      "mercedes-benz",
	"mercedes benz": "mercedes-benz",
	"benz":          "mercedes-benz",
	"citroen":       "citroen",
	"hyundai":       "hyundai",
	"hiunday":       "hyundai",
	"toyota":        "toyota",
	"fiat":          "fiat",
	"ford":          "ford",
	"honda":         "honda",
	"renault":       "renault",
	"nissan":        "nissan",
	"jeep":          "jeep",
	"peugeot":       "peugeot",
	"mitsubishi":    "mitsubishi",
	"volkswagen":    "volkswagen",
	"chevrolet":     "chevrolet",
	"bmw":           "bmw",
	"audi":          "audi",
	"kia":           "kia",
	"caoa chery":    "chery",
	"chery":         "chery",
}

var enumAliases = map[string]string{
	"picape":      model.BodyPickup,
	"caminhonete": model.BodyPickup,
	"pick-up":     model.BodyPickup,
	"hatchback":   model.BodyHatch,
	"minivan":     model.BodyMinivan,
	"van":         model.BodyMinivan,
	"automatica":  model.TransmissionAutomatic,
	"automatic":   model.TransmissionAutomatic,
	"auto":        model.TransmissionAutomatic,
	"cvt":         model.TransmissionAutomatic,
	"mecanico":    model.TransmissionManual,
	"mecanica":    model.TransmissionManual,
	"urbano":      model.UsageCity,
	"cidade":      model.UsageCity,
	"estrada":     model.UsageTravel,
	"familiar":    model.PrimaryUseFamily,
	"uber x":      model.RideTierX,
	"99":          model.PrimaryUseRideHailing,
	"aplicativo":  model.PrimaryUseRideHailing,
	"app":         model.PrimaryUseRideHailing,
	"1 mes":       "1mes",
	"3 meses":     "3meses",
}

var groupedThousandsRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

// SanitizeExtraction validates an untrusted extraction object field by field.
// Numeric fields are clamped into their legal range, anything unparseable or
// outside an enumeration is dropped.
func SanitizeExtraction(raw map[string]interface{}, now time.Time) model.CustomerProfile {
	var p model.CustomerProfile
	if raw == nil {
		return p
	}

	p.Budget = budgetField(raw["budget"])
	p.BudgetMin = budgetField(raw["budgetMin"])
	p.BudgetMax = budgetField(raw["budgetMax"])
	if p.BudgetMin != nil && p.BudgetMax != nil && *p.BudgetMin > *p.BudgetMax {
		p.BudgetMin = nil
	}

	p.People = intField(raw["people"], minPeople, maxPeople)
	p.MinYear = intField(raw["minYear"], minYearSeen, now.Year()+1)
	p.MaxKm = intField(raw["maxKm"], 0, maxKmSeen)

	p.Usage = enumField(raw["usage"], model.Usages)
	p.PrimaryUse = enumField(raw["usoPrincipal"], model.PrimaryUses)
	p.RideTier = enumField(raw["tipoUber"], model.RideTiers)
	p.BodyType = enumField(raw["bodyType"], model.BodyTypes)
	p.Transmission = enumField(raw["transmission"], model.Transmissions)
	p.FuelType = enumField(raw["fuelType"], model.FuelTypes)
	p.Urgency = enumField(raw["urgency"], model.Urgencies)

	p.Color = textField(raw["color"])
	p.Brand = brandField(raw["brand"])
	p.Model = textField(raw["model"])
	p.HasTradeIn = boolField(raw["hasTradeIn"])

	p.Priorities = keywordList(raw["priorities"])
	p.DealBreakers = keywordList(raw["dealBreakers"])

	if p.RideTier != nil && p.PrimaryUse == nil {
		p.PrimaryUse = strPtr(model.PrimaryUseRideHailing)
	}
	applyModelKnowledge(&p)
	return p
}

// applyModelKnowledge fills brand and body type from a recognized model name.
// Pickup models always force the pickup body type.
func applyModelKnowledge(p *model.CustomerProfile) {
	if p.Model == nil {
		return
	}
	known, ok := lookupModel(*p.Model)
	if !ok {
		return
	}
	if p.Brand == nil {
		p.Brand = strPtr(known.brand)
	}
	if known.body == model.BodyPickup {
		p.BodyType = strPtr(model.BodyPickup)
		p.Priorities = appendUnique(p.Priorities, "pickup")
		return
	}
	if p.BodyType == nil {
		p.BodyType = strPtr(known.body)
	}
}

func lookupModel(name string) (knownModel, bool) {
	key := utils.Fold(strings.TrimSpace(name))
	if m, ok := knownModels[key]; ok {
		return m, true
	}
	if fields := strings.Fields(key); len(fields) > 1 {
		m, ok := knownModels[fields[0]]
		return m, ok
	}
	return knownModel{}, false
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(x), "R$"))
		s = strings.ReplaceAll(s, " ", "")
		switch {
		case strings.Contains(s, ",") && strings.Contains(s, "."):
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		case groupedThousandsRe.MatchString(s):
			s = strings.ReplaceAll(s, ".", "")
		case strings.Contains(s, ","):
			s = strings.ReplaceAll(s, ",", ".")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func budgetField(v interface{}) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	f = math.Floor(f)
	if f <= 0 {
		return nil
	}
	if f > maxBudget {
		f = maxBudget
	}
	return &f
}

func intField(v interface{}, lo, hi int) *int {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	n := int(math.Floor(f))
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return &n
}

func enumField(v interface{}, allowed []string) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	key := utils.Fold(strings.TrimSpace(s))
	if alias, ok := enumAliases[key]; ok {
		key = alias
	}
	for _, a := range allowed {
		if key == a {
			return strPtr(a)
		}
	}
	return nil
}

func textField(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if s == "" || utf8.RuneCountInString(s) > maxTextLength {
		return nil
	}
	return &s
}

func brandField(v interface{}) *string {
	s := textField(v)
	if s == nil {
		return nil
	}
	key := utils.Fold(*s)
	if key == "qualquer" || key == "any" {
		return nil
	}
	if canonical, ok := brandAliases[key]; ok {
		return strPtr(canonical)
	}
	return &key
}

func boolField(v interface{}) *bool {
	switch x := v.(type) {
	case bool:
		return &x
	case string:
		switch utils.Fold(strings.TrimSpace(x)) {
		case "true", "sim", "yes":
			t := true
			return &t
		case "false", "nao", "no":
			f := false
			return &f
		}
	}
	return nil
}

// keywordList normalizes a list of free-form keywords to snake_case,
// deduplicated and bounded.
func keywordList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		key := strings.ReplaceAll(utils.NormalizeKey(s), " ", "_")
		if key == "" || utf8.RuneCountInString(key) > maxItemLength {
			continue
		}
		out = appendUnique(out, key)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func strPtr(s string) *string { return &s }
