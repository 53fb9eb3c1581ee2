package core

import (
	"fmt"
	"strings"
)

// Category is the closed set of transaction categories.
type Category uint8

const (
	Food Category = iota + 1
	Transportation
	Entertainment
	Shopping
	Utilities
	Rent
	Health
	Education
	Travel
	Pets
	Coffee
	Snacks
	Salary
	Other
)

// categoryNames is the persisted form of each category.
var categoryNames = [...]string{
	Food:           "FOOD",
	Transportation: "TRANSPORTATION",
	Entertainment:  "ENTERTAINMENT",
	Shopping:       "SHOPPING",
	Utilities:      "UTILITIES",
	Rent:           "RENT",
	Health:         "HEALTH",
	Education:      "EDUCATION",
	Travel:         "TRAVEL",
	Pets:           "PETS",
	Coffee:         "COFFEE",
	Snacks:         "SNACKS",
	Salary:         "SALARY",
	Other:          "OTHER",
}

// CategoryDisplay holds presentation data for a category.
type CategoryDisplay struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var categoryDisplays = map[Category]CategoryDisplay{
	Food:           {Name: "Food", Icon: "fastfood", Color: "#F44336"},
	Transportation: {Name: "Transportation", Icon: "directions_car", Color: "#2196F3"},
	Entertainment:  {Name: "Entertainment", Icon: "movie", Color: "#9C27B0"},
	Shopping:       {Name: "Shopping", Icon: "shopping_cart", Color: "#4CAF50"},
	Utilities:      {Name: "Utilities", Icon: "water_drop", Color: "#03A9F4"},
	Rent:           {Name: "Rent", Icon: "home", Color: "#FF5722"},
	Health:         {Name: "Health", Icon: "local_hospital", Color: "#E91E63"},
	Education:      {Name: "Education", Icon: "school", Color: "#673AB7"},
	Travel:         {Name: "Travel", Icon: "flight_takeoff", Color: "#009688"},
	Pets:           {Name: "Pets", Icon: "pets", Color: "#FF9800"},
	Coffee:         {Name: "Coffee", Icon: "local_cafe", Color: "#795548"},
	Snacks:         {Name: "Snacks", Icon: "cake", Color: "#E91E63"},
	Salary:         {Name: "Salary", Icon: "attach_money", Color: "#4CAF50"},
	Other:          {Name: "Other", Icon: "more", Color: "#607D8B"},
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryNames)-1)
	for c := Food; c <= Other; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory resolves a persisted or user supplied category name.
func ParseCategory(s string) (Category, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c := Food; c <= Other; c++ {
		if categoryNames[c] == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	return c >= Food && c <= Other
}

// IsIncome reports whether the category is the designated income category.
func (c Category) IsIncome() bool {
	return c == Salary
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// Display returns the presentation entry for c.
func (c Category) Display() CategoryDisplay {
	if d, ok := categoryDisplays[c]; ok {
		return d
	}
	return categoryDisplays[Other]
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrUnknownCategory
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
