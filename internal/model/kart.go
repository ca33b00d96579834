package model

import "time"

// Kart is a rentable vehicle in the catalog.  HourlyCost is expressed in
// whole balance units per hour.  Latitude/Longitude locate the kart for the
// proximity ranking.
type Kart struct {
	ID         uint64    `db:"id" json:"id"`
	Type       string    `db:"type" json:"type"`
	HourlyCost uint32    `db:"hourly_cost" json:"hourly_cost"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
}
