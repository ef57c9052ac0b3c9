package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuoteItem is one product line on a quote.
type QuoteItem struct {
	ProductPackage string `json:"product_package"`
	Quantity       int    `json:"quantity"`
}

// Quote is a committed quote record. Items are stored as JSONB since line
// counts are tiny and never queried individually.
type Quote struct {
	ID           string         `gorm:"column:id;type:uuid;primaryKey" json:"quote_id"`
	QuoteNumber  string         `gorm:"column:quote_number;type:text" json:"quote_number"`
	QuoteURL     string         `gorm:"column:quote_url;type:text" json:"quote_url"`
	CustomerName string         `gorm:"column:customer_name;type:text" json:"customer_name"`
	ContactInfo  string         `gorm:"column:contact_info;type:text" json:"contact_info"`
	Items        datatypes.JSON `gorm:"column:items;type:jsonb" json:"items"`

	ExpectedStartDate string `gorm:"column:expected_start_date;type:text" json:"expected_start_date,omitempty"`
	Notes             string `gorm:"column:notes;type:text" json:"notes,omitempty"`

	// Degraded marks quotes minted locally because the CRM was unreachable
	// or unconfigured.
	Degraded bool `gorm:"column:degraded" json:"degraded"`

	EmailSent bool      `gorm:"column:email_sent" json:"email_sent"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Quote) TableName() string { return "quotes" }
