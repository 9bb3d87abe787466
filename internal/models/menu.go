package models

import (
	"time"
)

// MenuItem is a single dish on the menu
type MenuItem struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Price       float64   `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	Image       *string   `db:"image" json:"image,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewMenuItem creates a menu item with defaults applied
func NewMenuItem(name string, price float64, category, description string, image *string) *MenuItem {
	now := GetCurrentTime()

	if category == "" {
		category = "general"
	}

	return &MenuItem{
		ID:          GenerateID("itm"),
		Name:        name,
		Price:       price,
		Category:    category,
		Image:       image,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
