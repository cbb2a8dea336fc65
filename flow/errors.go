// Package flow implements the request validation of the authorization
// server. Validators are pure, accumulate errors per field and classify
// authorize failures by whether the redirect URI may be trusted.
package flow

import (
	"strings"
)

// Errors collects validation failures per field while preserving the order in
// which fields first failed.
type Errors struct {
	order  []string
	fields map[string][]string
}

// Add will record a failure message for the provided field.
func (e *Errors) Add(field, message string) {
	// ensure map
	if e.fields == nil {
		e.fields = map[string][]string{}
	}

	// track order
	if _, ok := e.fields[field]; !ok {
		e.order = append(e.order, field)
	}

	// add message
	e.fields[field] = append(e.fields[field], message)
}

// Empty returns whether no failures have been recorded.
func (e *Errors) Empty() bool {
	return len(e.fields) == 0
}

// Fields returns the recorded failures keyed by field.
func (e *Errors) Fields() map[string][]string {
	return e.fields
}

// String returns all failures as a single "field: message" list.
func (e *Errors) String() string {
	var b strings.Builder
	for _, field := range e.order {
		for _, message := range e.fields[field] {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			b.WriteString(field)
			b.WriteString(": ")
			b.WriteString(message)
		}
	}

	return b.String()
}
