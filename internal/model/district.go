package model

import "time"

// DistrictKey holds the identifying fields of a district as reported upstream.
type DistrictKey struct {
	Code      string `json:"district_code"`
	Name      string `json:"district_name"`
	StateCode string `json:"state_code"`
	StateName string `json:"state_name"`
}

// District is a row in the districts table. Code and StateCode are fixed at
// creation; Name and StateName follow the latest sync.
type District struct {
	ID        int64     `json:"id"`
	Code      string    `json:"district_code"`
	Name      string    `json:"district_name"`
	StateCode string    `json:"state_code"`
	StateName string    `json:"state_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizedRecord is one upstream record mapped onto the local schema.
type NormalizedRecord struct {
	District DistrictKey `json:"district"`
	FinYear  string      `json:"fin_year"`
	Month    string      `json:"month"`
	Metrics  Metrics     `json:"metrics"`
	Remarks  *string     `json:"remarks,omitempty"`
}

// DistrictRecord is a row in the district_records table, unique on
// (DistrictID, FinYear, Month).
type DistrictRecord struct {
	ID         int64     `json:"id"`
	DistrictID int64     `json:"district_id"`
	FinYear    string    `json:"fin_year"`
	Month      string    `json:"month"`
	Metrics    Metrics   `json:"metrics"`
	Remarks    *string   `json:"remarks,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
