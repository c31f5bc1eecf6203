// Package catalog defines the application's core catalog-related domain entities.
package catalog

import "time"

// Partner is a merchant offering a discount to subscribed consumers.
type Partner struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	City            string     `json:"city"`
	Category        string     `json:"category"`
	Description     *string    `json:"description,omitempty"`
	Address         *string    `json:"address,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	ImagePath       *string    `json:"imagePath,omitempty"`
	OfferedDiscount int        `json:"offeredDiscount"`
	Active          bool       `json:"active"`
	Created         time.Time  `json:"created"`
	Changed         *time.Time `json:"changed,omitempty"`
}

// AdaptedPartner is a Partner shaped for one consumer's plan. EffectiveDiscount
// and NeedsUpgrade are derived on every read; they are never stored raw.
type AdaptedPartner struct {
	Partner
	EffectiveDiscount int  `json:"effectiveDiscount"`
	NeedsUpgrade      bool `json:"needsUpgrade"`
}

// City is a geography consumers can browse and subscribe to.
type City struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Category is a partner grouping within the catalog.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}
