package model

import "strings"

// Category is a fixed budget bucket with a monthly spending cap.
type Category string

const (
	CategoryFX            Category = "FX"
	CategoryRemittance    Category = "Remittance"
	CategorySettlement    Category = "Settlement"
	CategorySoftware      Category = "Software"
	CategoryConsulting    Category = "Consulting"
	CategoryTravel        Category = "Travel"
	CategoryOffice        Category = "Office"
	CategoryData          Category = "Data"
	CategoryCybersecurity Category = "Cybersecurity"
	CategoryLegal         Category = "Legal"
)

func (c Category) String() string {
	return string(c)
}

// AllCategories lists every valid budget category.
var AllCategories = []Category{
	CategoryFX,
	CategoryRemittance,
	CategorySettlement,
	CategorySoftware,
	CategoryConsulting,
	CategoryTravel,
	CategoryOffice,
	CategoryData,
	CategoryCybersecurity,
	CategoryLegal,
}

// ParseCategory resolves s to a known category, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	for _, c := range AllCategories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}
