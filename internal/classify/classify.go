// Package classify maps business-side phone numbers to departments.
package classify

import (
	"strings"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/phone"
)

// Department is the business unit a conversation or lead is attributed to.
type Department string

const (
	DepartmentSupport  Department = "support"
	DepartmentSales    Department = "sales"
	DepartmentRecovery Department = "recovery"
)

// Config is the immutable wiring for a Classifier. Numbers are the
// business-side lines customers write to, keyed by department.
type Config struct {
	Numbers map[Department]string
	// Default is used when no configured number matches.
	Default Department
	// AutoLead is the department that creates a lead on first contact.
	AutoLead Department
}

// Classifier resolves destination addresses to departments.
type Classifier struct {
	numbers  map[Department]string
	ordered  []Department
	fallback Department
	autoLead Department
}

// New builds a Classifier. A nil or empty Numbers map yields a classifier
// that always answers the default department.
func New(cfg Config) *Classifier {
	fallback := cfg.Default
	if fallback == "" {
		fallback = DepartmentSupport
	}
	numbers := make(map[Department]string, len(cfg.Numbers))
	var ordered []Department
	// Fixed evaluation order keeps classification deterministic when two
	// configured numbers overlap.
	for _, dept := range []Department{DepartmentSales, DepartmentRecovery, DepartmentSupport} {
		if raw, ok := cfg.Numbers[dept]; ok {
			digits := phone.Digits(raw)
			if digits != "" {
				numbers[dept] = digits
				ordered = append(ordered, dept)
			}
		}
	}
	return &Classifier{
		numbers:  numbers,
		ordered:  ordered,
		fallback: fallback,
		autoLead: cfg.AutoLead,
	}
}

// Classify maps a business-side destination address to a department.
// Destination addresses may arrive with or without a country code or
// channel suffix, so matching is by substring/suffix over digits only.
func (c *Classifier) Classify(destination string) Department {
	digits := phone.Digits(destination)
	if digits == "" {
		return c.fallback
	}
	for _, dept := range c.ordered {
		number := c.numbers[dept]
		if strings.HasSuffix(digits, number) || strings.Contains(digits, number) {
			return dept
		}
	}
	return c.fallback
}

// Default returns the fallback department.
func (c *Classifier) Default() Department {
	return c.fallback
}

// GeneratesLead reports whether first contact in dept should open a lead.
func (c *Classifier) GeneratesLead(dept Department) bool {
	return c.autoLead != "" && dept == c.autoLead
}
