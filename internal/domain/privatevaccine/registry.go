package privatevaccine

// Anchor says what a brand's dose offsets are measured from.
type Anchor string

const (
	// AnchorBirth offsets run from the child's birth date, like the
	// mandatory catalog.
	AnchorBirth Anchor = "birth"
	// AnchorFirstDose offsets run from the date of the first administered
	// dose; the series has its own clock.
	AnchorFirstDose Anchor = "first_dose"
)

// Brand is one purchasable product implementing a vaccine type, with its own
// dose plan.
type Brand struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	DoseCount     int    `json:"dose_count"`
	OffsetsMonths []int  `json:"offsets_months"`
	Anchor        Anchor `json:"anchor"`
}

// VaccineType groups the brands that immunize against the same disease.
// Family is the vaccine code written on records, shared across brands so the
// duplicate-series check catches cross-brand double counting.
type VaccineType struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	Family string  `json:"family"`
	Brands []Brand `json:"brands"`
}

// BrandByCode finds a brand within the type.
func (t *VaccineType) BrandByCode(code string) (*Brand, bool) {
	for i := range t.Brands {
		if t.Brands[i].Code == code {
			return &t.Brands[i], true
		}
	}
	return nil, false
}

// registry holds the configured off-catalog vaccine types. Reference data,
// never mutated at runtime.
var registry = []VaccineType{
	{
		Key: "rotavirus", Name: "Rotavirus", Family: "ROTA",
		Brands: []Brand{
			{Code: "RV1", Name: "Rotarix", DoseCount: 2, OffsetsMonths: []int{2, 4}, Anchor: AnchorBirth},
			{Code: "RV5", Name: "RotaTeq", DoseCount: 3, OffsetsMonths: []int{2, 4, 6}, Anchor: AnchorBirth},
		},
	},
	{
		Key: "meningococcal-b", Name: "Meningococcal B", Family: "MENB",
		Brands: []Brand{
			{Code: "MENB-4C", Name: "Bexsero", DoseCount: 3, OffsetsMonths: []int{2, 4, 12}, Anchor: AnchorBirth},
		},
	},
	{
		Key: "varicella", Name: "Varicella", Family: "VAR",
		Brands: []Brand{
			{Code: "VAR-1", Name: "Varivax", DoseCount: 2, OffsetsMonths: []int{12, 15}, Anchor: AnchorBirth},
		},
	},
	{
		Key: "hepatitis-a", Name: "Hepatitis A", Family: "HEPA",
		Brands: []Brand{
			{Code: "HEPA-1", Name: "Havrix", DoseCount: 2, OffsetsMonths: []int{0, 6}, Anchor: AnchorFirstDose},
		},
	},
	{
		Key: "influenza", Name: "Seasonal Influenza", Family: "FLU",
		Brands: []Brand{
			{Code: "FLU-Q", Name: "Quadrivalent Flu", DoseCount: 2, OffsetsMonths: []int{0, 1}, Anchor: AnchorFirstDose},
		},
	},
}

// Types returns every configured private vaccine type.
func Types() []VaccineType {
	out := make([]VaccineType, len(registry))
	copy(out, registry)
	return out
}

// TypeByKey looks a type up by its registry key.
func TypeByKey(key string) (*VaccineType, bool) {
	for i := range registry {
		if registry[i].Key == key {
			return &registry[i], true
		}
	}
	return nil, false
}
