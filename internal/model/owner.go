package model

import (
	"errors"
	"strings"
)

// OwnerKind distinguishes the two entities a document can belong to.
type OwnerKind string

const (
	OwnerEmployee OwnerKind = "employee"
	OwnerLocation OwnerKind = "location"
)

var (
	ErrOwnerRequired  = errors.New("exactly one of employee or location owner is required")
	ErrOwnerKind      = errors.New("unknown owner kind")
	ErrOwnerIDInvalid = errors.New("owner id is invalid")
)

// Owner references the employee or location that a document belongs to.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// NewOwner builds an Owner from the two mutually exclusive references.
func NewOwner(employeeID, locationID string) (Owner, error) {
	employeeID = strings.TrimSpace(employeeID)
	locationID = strings.TrimSpace(locationID)

	switch {
	case employeeID != "" && locationID != "":
		return Owner{}, ErrOwnerRequired
	case employeeID != "":
		o := Owner{Kind: OwnerEmployee, ID: employeeID}
		return o, o.Validate()
	case locationID != "":
		o := Owner{Kind: OwnerLocation, ID: locationID}
		return o, o.Validate()
	default:
		return Owner{}, ErrOwnerRequired
	}
}

// Validate checks that the owner names a known kind and a usable id.
func (o Owner) Validate() error {
	if o.Kind != OwnerEmployee && o.Kind != OwnerLocation {
		return ErrOwnerKind
	}
	if !validOwnerID(o.ID) {
		return ErrOwnerIDInvalid
	}
	return nil
}

// validOwnerID reports whether id can form exactly one storage key segment.
func validOwnerID(id string) bool {
	if len(id) > 64 || strings.TrimSpace(id) == "" {
		return false
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return false
	}
	return strings.Trim(id, ". ") != ""
}

// EmployeeID returns the employee reference or nil.
func (o Owner) EmployeeID() *string {
	if o.Kind != OwnerEmployee {
		return nil
	}
	id := o.ID
	return &id
}

// LocationID returns the location reference or nil.
func (o Owner) LocationID() *string {
	if o.Kind != OwnerLocation {
		return nil
	}
	id := o.ID
	return &id
}

// OwnerFromColumns rebuilds an Owner from nullable employee/location columns.
func OwnerFromColumns(employeeID, locationID *string) Owner {
	if employeeID != nil && *employeeID != "" {
		return Owner{Kind: OwnerEmployee, ID: *employeeID}
	}
	if locationID != nil && *locationID != "" {
		return Owner{Kind: OwnerLocation, ID: *locationID}
	}
	return Owner{}
}
