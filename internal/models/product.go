package models

// Product is a sellable item from the CRM catalog.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
