// Package schema defines the lead record shared by the service, the SDK and the CLI.
package schema

import (
	"errors"
	"time"
)

// ErrLeadNotFound is returned by point lookups that miss.
var ErrLeadNotFound = errors.New("lead not found")

// HighScoreThreshold is the score from which a lead counts as "high".
const HighScoreThreshold = 80

// Lead is one prospective-customer record as stored and served.
// A nil Phone means the caller never supplied one.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Company   string    `json:"company"`
	Role      string    `json:"role"`
	Location  string    `json:"location"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// PhoneOrEmpty returns the phone number or "" when none was supplied.
func (l Lead) PhoneOrEmpty() string {
	if l.Phone == nil {
		return ""
	}
	return *l.Phone
}

// IsHighScore reports whether the lead reaches HighScoreThreshold.
func (l Lead) IsHighScore() bool {
	return l.Score >= HighScoreThreshold
}

// LeadInput is a validated inbound lead before the store assigns identity.
type LeadInput struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required"`
	Phone    *string `json:"phone,omitempty"`
	Company  string  `json:"company" validate:"required"`
	Role     string  `json:"role" validate:"required"`
	Location string  `json:"location" validate:"required"`
	Score    int     `json:"score"`
}

// Lead materialises the input into a record with the given identity.
// The phone value is copied so later changes to the input do not leak in.
func (in LeadInput) Lead(id string, ts time.Time) Lead {
	var phone *string
	if in.Phone != nil {
		p := *in.Phone
		phone = &p
	}
	return Lead{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     phone,
		Company:   in.Company,
		Role:      in.Role,
		Location:  in.Location,
		Score:     in.Score,
		Timestamp: ts,
	}
}

// Clone returns a copy that shares no memory with l.
func (l Lead) Clone() Lead {
	if l.Phone != nil {
		p := *l.Phone
		l.Phone = &p
	}
	return l
}
