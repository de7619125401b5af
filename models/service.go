package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ServiceCategory is the fixed set of work types a booking can request
type ServiceCategory string

const (
	ServiceBarber        ServiceCategory = "Barber"
	ServicePlumber       ServiceCategory = "Plumber"
	ServiceElectrician   ServiceCategory = "Electrician"
	ServiceHouseCleaning ServiceCategory = "House Cleaning"
	ServiceCarpenter     ServiceCategory = "Carpenter"
	ServicePainter       ServiceCategory = "Painter"
)

// AllServiceCategories lists every valid service category
var AllServiceCategories = []ServiceCategory{
	ServiceBarber,
	ServicePlumber,
	ServiceElectrician,
	ServiceHouseCleaning,
	ServiceCarpenter,
	ServicePainter,
}

// IsValid checks if the service category is one of the known categories
func (s ServiceCategory) IsValid() bool {
	for _, c := range AllServiceCategories {
		if s == c {
			return true
		}
	}
	return false
}

// ServiceList is the set of categories a provider services, stored as a
// comma-separated column
type ServiceList []ServiceCategory

// Value implements driver.Valuer for database storage
func (sl ServiceList) Value() (driver.Value, error) {
	parts := make([]string, 0, len(sl))
	for _, s := range sl {
		if !s.IsValid() {
			return nil, fmt.Errorf("invalid service category: %s", s)
		}
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ","), nil
}

// Scan implements sql.Scanner for database retrieval
func (sl *ServiceList) Scan(value interface{}) error {
	if value == nil {
		*sl = nil
		return nil
	}

	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ServiceList", value)
	}

	if raw == "" {
		*sl = nil
		return nil
	}

	parts := strings.Split(raw, ",")
	list := make(ServiceList, 0, len(parts))
	for _, p := range parts {
		list = append(list, ServiceCategory(p))
	}
	*sl = list
	return nil
}

// Contains checks if the list includes the given category
func (sl ServiceList) Contains(category ServiceCategory) bool {
	for _, s := range sl {
		if s == category {
			return true
		}
	}
	return false
}
