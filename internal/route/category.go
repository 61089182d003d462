package route

import "strings"

// Category tags a stop with a purpose and a marker style.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// DefaultCategoryID is used when a stop is submitted without a category.
const DefaultCategoryID = "default"

var categories = []Category{
	{ID: "default", Name: "Default", Color: "#3b82f6", Icon: "fa-map-pin"},
	{ID: "order", Name: "Order", Color: "#10b981", Icon: "fa-shopping-bag"},
	{ID: "sample", Name: "Sample", Color: "#f59e0b", Icon: "fa-box-open"},
	{ID: "meeting", Name: "Meeting", Color: "#6366f1", Icon: "fa-handshake"},
	{ID: "delivery", Name: "Delivery", Color: "#ef4444", Icon: "fa-truck"},
}

// Categories returns the available stop categories.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// LookupCategory finds a category by id or name, case-insensitively.
// An empty key resolves to the default category.
func LookupCategory(key string) (Category, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultCategoryID
	}
	for _, c := range categories {
		if strings.EqualFold(c.ID, key) || strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return Category{}, false
}
