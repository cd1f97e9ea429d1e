package model

// Allowed values for the enumerated profile fields. Anything else coming out of
// the extractor is discarded.
const (
	UsageCity   = "cidade"
	UsageTravel = "viagem"
	UsageWork   = "trabalho"
	UsageMixed  = "misto"

	BodySedan   = "sedan"
	BodySUV     = "suv"
	BodyHatch   = "hatch"
	BodyPickup  = "pickup"
	BodyMinivan = "minivan"

	TransmissionManual    = "manual"
	TransmissionAutomatic = "automatico"

	PrimaryUseRideHailing = "uber"
	PrimaryUseFamily      = "familia"
	PrimaryUseWork        = "trabalho"
	PrimaryUseTravel      = "viagem"
	PrimaryUseOther       = "outro"

	RideTierX       = "uberx"
	RideTierComfort = "comfort"
	RideTierBlack   = "black"
)

var (
	Usages        = []string{UsageCity, UsageTravel, UsageWork, UsageMixed}
	BodyTypes     = []string{BodySedan, BodySUV, BodyHatch, BodyPickup, BodyMinivan}
	Transmissions = []string{TransmissionManual, TransmissionAutomatic}
	FuelTypes     = []string{"gasolina", "flex", "diesel", "hibrido", "eletrico"}
	PrimaryUses   = []string{PrimaryUseRideHailing, PrimaryUseFamily, PrimaryUseWork, PrimaryUseTravel, PrimaryUseOther}
	RideTiers     = []string{RideTierX, RideTierComfort, RideTierBlack}
	Urgencies     = []string{"imediato", "1mes", "3meses", "flexivel"}
)

// CustomerProfile is the accumulated set of preferences for one conversation.
// Nil pointers mean "not stated yet".
type CustomerProfile struct {
	CustomerName *string  `json:"customerName,omitempty"`
	Budget       *float64 `json:"budget,omitempty"`
	BudgetMin    *float64 `json:"budgetMin,omitempty"`
	BudgetMax    *float64 `json:"budgetMax,omitempty"`
	People       *int     `json:"people,omitempty"`
	Usage        *string  `json:"usage,omitempty"`
	PrimaryUse   *string  `json:"usoPrincipal,omitempty"`
	RideTier     *string  `json:"tipoUber,omitempty"`
	BodyType     *string  `json:"bodyType,omitempty"`
	MinYear      *int     `json:"minYear,omitempty"`
	MaxKm        *int     `json:"maxKm,omitempty"`
	Transmission *string  `json:"transmission,omitempty"`
	FuelType     *string  `json:"fuelType,omitempty"`
	Color        *string  `json:"color,omitempty"`
	Brand        *string  `json:"brand,omitempty"`
	Model        *string  `json:"model,omitempty"`
	HasTradeIn   *bool    `json:"hasTradeIn,omitempty"`
	Urgency      *string  `json:"urgency,omitempty"`
	Priorities   []string `json:"priorities,omitempty"`
	DealBreakers []string `json:"dealBreakers,omitempty"`
}

// EffectiveBudget returns the ceiling the customer is willing to pay.
func (p CustomerProfile) EffectiveBudget() (float64, bool) {
	if p.Budget != nil {
		return *p.Budget, true
	}
	if p.BudgetMax != nil {
		return *p.BudgetMax, true
	}
	return 0, false
}

// HasUsage reports whether either usage context field is known.
func (p CustomerProfile) HasUsage() bool {
	return p.Usage != nil || p.PrimaryUse != nil
}

// HasPriority reports whether any priority contains one of the given keywords.
func (p CustomerProfile) HasPriority(keywords ...string) bool {
	for _, prio := range p.Priorities {
		for _, kw := range keywords {
			if prio == kw {
				return true
			}
		}
	}
	return false
}

// HasDealBreaker reports whether the customer excluded the given trait.
func (p CustomerProfile) HasDealBreaker(name string) bool {
	for _, db := range p.DealBreakers {
		if db == name {
			return true
		}
	}
	return false
}

// Fields lists the json names of the populated preference fields, in
// declaration order. The customer's name is not a preference.
func (p CustomerProfile) Fields() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(p.Budget != nil, "budget")
	add(p.BudgetMin != nil, "budgetMin")
	add(p.BudgetMax != nil, "budgetMax")
	add(p.People != nil, "people")
	add(p.Usage != nil, "usage")
	add(p.PrimaryUse != nil, "usoPrincipal")
	add(p.RideTier != nil, "tipoUber")
	add(p.BodyType != nil, "bodyType")
	add(p.MinYear != nil, "minYear")
	add(p.MaxKm != nil, "maxKm")
	add(p.Transmission != nil, "transmission")
	add(p.FuelType != nil, "fuelType")
	add(p.Color != nil, "color")
	add(p.Brand != nil, "brand")
	add(p.Model != nil, "model")
	add(p.HasTradeIn != nil, "hasTradeIn")
	add(p.Urgency != nil, "urgency")
	add(len(p.Priorities) > 0, "priorities")
	add(len(p.DealBreakers) > 0, "dealBreakers")
	return fields
}

// IsEmpty reports whether nothing is known about the customer.
func (p CustomerProfile) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// ExtractionResult is the output of one extraction pass over a single message.
type ExtractionResult struct {
	Profile         CustomerProfile `json:"extracted"`
	Confidence      float64         `json:"confidence"`
	Reasoning       string          `json:"reasoning"`
	FieldsExtracted []string        `json:"fieldsExtracted"`
}

// Readiness actions.
const (
	ActionContinueAsking  = "continue_asking"
	ActionRecommendNow    = "recommend_now"
	ActionAskConfirmation = "ask_confirmation"
)

// Readiness is the outcome of the recommend-or-ask decision.
type Readiness struct {
	CanRecommend    bool     `json:"canRecommend"`
	Confidence      int      `json:"confidence"`
	MissingRequired []string `json:"missingRequired"`
	MissingOptional []string `json:"missingOptional"`
	Action          string   `json:"action"`
	Reasoning       string   `json:"reasoning"`
}
