package provider

import (
	"errors"
	"strings"
)

var ErrNoProviderAvailable = errors.New("no payment provider available for country/currency")

// countryPriority orders card providers per country. Cash is deliberately
// absent: it is never auto-selected, only honored as an explicit preference.
var countryPriority = map[string][]string{
	"AE": {"paytabs", "stripe"},
	"SA": {"paytabs", "stripe"},
	"EG": {"paytabs"},
	"JO": {"paytabs", "stripe"},
	"KW": {"paytabs", "stripe"},
}

var defaultPriority = []string{"stripe", "paytabs"}

// Selector picks a provider for a (country, currency, preference) tuple.
// Pure selection: no I/O beyond the static capability tables the providers
// expose.
type Selector struct {
	providers map[string]Provider
}

func NewSelector(providers ...Provider) *Selector {
	s := &Selector{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

// Get returns a registered provider by name.
func (s *Selector) Get(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Select honors an explicit preference when that provider supports the pair,
// then walks the country's priority list and returns the first provider with
// a non-empty method set for the currency.
func (s *Selector) Select(country, currency, preferred string) (Provider, error) {
	country = strings.ToUpper(country)
	currency = strings.ToUpper(currency)

	if preferred != "" {
		if p, ok := s.providers[preferred]; ok && len(p.SupportedMethods(country, currency)) > 0 {
			return p, nil
		}
	}

	priority, ok := countryPriority[country]
	if !ok {
		priority = defaultPriority
	}
	for _, name := range priority {
		p, ok := s.providers[name]
		if !ok {
			continue
		}
		if len(p.SupportedMethods(country, currency)) > 0 {
			return p, nil
		}
	}

	return nil, ErrNoProviderAvailable
}
