// Package identity matches probe face embeddings against enrolled employee
// templates and decides acceptance against a tunable threshold.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/face"
	"github.com/presensia/presensia/internal/settings"
)

// DefaultMatchThreshold applies when the setting is absent.
const DefaultMatchThreshold = 0.60

// topKCandidates bounds how many ranked templates the matcher inspects.
const topKCandidates = 5

// RejectReason classifies why a probe was not accepted.
type RejectReason string

const (
	RejectNoMatch          RejectReason = "NO_MATCH"
	RejectBelowThreshold   RejectReason = "BELOW_THRESHOLD"
	RejectEmployeeInactive RejectReason = "EMPLOYEE_INACTIVE"
)

// Outcome is the result of matching one probe embedding.
type Outcome struct {
	Accepted bool
	// Threshold is the value the probe was judged against. The same value
	// must be reused for any downstream decision on this request.
	Threshold float64
	Reason    RejectReason

	// Set when Accepted, and on BELOW_THRESHOLD and EMPLOYEE_INACTIVE
	// rejections where a nearest candidate exists.
	Employee *database.Employee
	Score    float64
}

// Gap returns how far the best score fell short of the threshold. Zero for
// accepted outcomes.
func (o *Outcome) Gap() float64 {
	if o.Accepted || o.Reason != RejectBelowThreshold {
		return 0
	}
	return o.Threshold - o.Score
}

// Matcher ranks probe embeddings against enrolled templates.
type Matcher struct {
	templates database.TemplateRanker
	employees database.EmployeeReader
	settings  settings.Provider
}

// NewMatcher creates a matcher over the given stores.
func NewMatcher(templates database.TemplateRanker, employees database.EmployeeReader, provider settings.Provider) *Matcher {
	return &Matcher{
		templates: templates,
		employees: employees,
		settings:  provider,
	}
}

// Match validates and preprocesses the probe, ranks it against enrolled
// templates and judges the best candidate against the current threshold.
// Validation failures are returned as errors; a clean probe that simply does
// not match anyone yields a rejected Outcome, not an error.
func (m *Matcher) Match(ctx context.Context, probe []float32) (*Outcome, error) {
	prepared, err := face.Preprocess(probe)
	if err != nil {
		return nil, fmt.Errorf("preprocess probe: %w", err)
	}

	threshold, err := m.settings.Float(ctx, settings.KeyMatchThreshold, DefaultMatchThreshold)
	if err != nil {
		return nil, fmt.Errorf("resolve match threshold: %w", err)
	}

	candidates, err := m.templates.RankBySimilarity(ctx, prepared, topKCandidates)
	if err != nil {
		return nil, fmt.Errorf("rank templates: %w", err)
	}

	if len(candidates) == 0 {
		return &Outcome{Threshold: threshold, Reason: RejectNoMatch}, nil
	}

	best := candidates[0]
	employee, err := m.employees.GetEmployee(ctx, best.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load candidate employee: %w", err)
	}
	if employee == nil {
		// Template points at a deleted employee, treat as no match
		return &Outcome{Threshold: threshold, Reason: RejectNoMatch}, nil
	}

	if best.Score < threshold {
		return &Outcome{
			Threshold: threshold,
			Reason:    RejectBelowThreshold,
			Employee:  employee,
			Score:     best.Score,
		}, nil
	}

	if !employee.IsActive {
		return &Outcome{
			Threshold: threshold,
			Reason:    RejectEmployeeInactive,
			Employee:  employee,
			Score:     best.Score,
		}, nil
	}

	return &Outcome{
		Accepted:  true,
		Threshold: threshold,
		Employee:  employee,
		Score:     best.Score,
	}, nil
}

// ResolveEmployeeID is a convenience for callers that only need the matched
// employee ID or uuid.Nil.
func (o *Outcome) ResolveEmployeeID() uuid.UUID {
	if o.Employee == nil {
		return uuid.Nil
	}
	return o.Employee.ID
}
