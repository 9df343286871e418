package models

import "time"

// OffenseRecord remembers the last ladder rung issued to an IP so that a
// repeat offender climbs the ladder even after the previous ban expired.
type OffenseRecord struct {
	IP          string    `json:"ip"`
	Level       BanLevel  `json:"level"`
	Count       int       `json:"count"`
	LastOffense time.Time `json:"last_offense"`
}
