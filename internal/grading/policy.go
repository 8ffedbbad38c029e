package grading

import "github.com/campuskit/ums-api/internal/models"

// ComponentMax declares the ceiling for one assessment component.
type ComponentMax struct {
	Component string
	Max       float64
}

// Band maps a minimum percentage to a letter grade and its point value.
type Band struct {
	MinPercent float64
	Letter     string
	Points     float64
}

// ClassificationBand maps a minimum CGPA to an academic standing label.
type ClassificationBand struct {
	MinGPA float64
	Label  string
}

// ClassificationNone is reported when a student has no graded courses.
const ClassificationNone = "N/A"

// Policy is the institution's grading scale. The engine takes it at
// construction so the scale can be swapped without touching call sites.
type Policy struct {
	// Components holds the per-component maxima in display order.
	Components []ComponentMax
	// Bands is the letter scale, descending; first match wins.
	Bands []Band
	// Classifications is the standing scale, descending; first match wins.
	Classifications []ClassificationBand
}

// Default returns the standard 100-mark scale with the conventional
// 4.0-point letter mapping and honours classification.
func Default() Policy {
	return Policy{
		Components: []ComponentMax{
			{models.ComponentClassParticipation, 5},
			{models.ComponentAssignment, 10},
			{models.ComponentQuiz, 10},
			{models.ComponentProject, 15},
			{models.ComponentMidTerm, 20},
			{models.ComponentFinalTerm, 40},
		},
		Bands: []Band{
			{90, "A+", 4.0},
			{85, "A", 3.7},
			{80, "A-", 3.3},
			{75, "B+", 3.0},
			{70, "B", 2.7},
			{65, "B-", 2.3},
			{60, "C+", 2.0},
			{55, "C", 1.7},
			{50, "C-", 1.3},
			{45, "D", 1.0},
			{0, "F", 0.0},
		},
		Classifications: []ClassificationBand{
			{3.7, "Distinction"},
			{3.3, "First Class"},
			{3.0, "Second Class Upper"},
			{2.3, "Second Class Lower"},
			{2.0, "Third Class"},
			{1.0, "Pass"},
			{0, "Fail"},
		},
	}
}

// MaxFor returns the ceiling for a component and whether it is known.
func (p Policy) MaxFor(component string) (float64, bool) {
	for _, cm := range p.Components {
		if cm.Component == component {
			return cm.Max, true
		}
	}
	return 0, false
}

// TotalMarks is the sum of all component maxima.
func (p Policy) TotalMarks() float64 {
	total := 0.0
	for _, cm := range p.Components {
		total += cm.Max
	}
	return total
}

// Clamp corrects a submitted score into [0, max] for its component.
// The second return reports whether the value was adjusted.
func (p Policy) Clamp(component string, value float64) (float64, bool) {
	max, ok := p.MaxFor(component)
	if !ok {
		return value, false
	}
	if value < 0 {
		return 0, true
	}
	if value > max {
		return max, true
	}
	return value, false
}

// Letter resolves a percentage against the band table, descending order,
// first match wins.
func (p Policy) Letter(percentage float64) (string, float64) {
	for _, band := range p.Bands {
		if percentage >= band.MinPercent {
			return band.Letter, band.Points
		}
	}
	if len(p.Bands) == 0 {
		return "", 0
	}
	last := p.Bands[len(p.Bands)-1]
	return last.Letter, last.Points
}

// Classify resolves a CGPA against the classification table.
func (p Policy) Classify(cgpa float64) string {
	for _, band := range p.Classifications {
		if cgpa >= band.MinGPA {
			return band.Label
		}
	}
	if len(p.Classifications) == 0 {
		return ClassificationNone
	}
	return p.Classifications[len(p.Classifications)-1].Label
}

// Summary carries the figures derived from a grade's component scores.
type Summary struct {
	ObtainedMarks float64
	Percentage    float64
	Letter        string
	Points        float64
	IsComplete    bool
}

// Summarize derives marks, percentage, letter and points from the stored
// component values. A nil value means the component was never submitted;
// IsComplete requires every component to have been submitted at least once.
func (p Policy) Summarize(values map[string]*float64) Summary {
	obtained := 0.0
	complete := true
	for _, cm := range p.Components {
		value := values[cm.Component]
		if value == nil {
			complete = false
			continue
		}
		clamped, _ := p.Clamp(cm.Component, *value)
		obtained += clamped
	}

	// The scale totals 100, so percentage equals obtained marks.
	percentage := obtained * 100 / p.TotalMarks()
	letter, points := p.Letter(percentage)
	return Summary{
		ObtainedMarks: obtained,
		Percentage:    percentage,
		Letter:        letter,
		Points:        points,
		IsComplete:    complete,
	}
}

// CreditPoints is one graded course's contribution to a GPA average.
type CreditPoints struct {
	CreditHours int
	Points      float64
}

// WeightedGPA computes the credit-weighted grade point average. It returns
// nil when nothing is graded so callers can distinguish "no GPA" from 0.0.
func WeightedGPA(courses []CreditPoints) *float64 {
	totalCredits := 0
	sum := 0.0
	for _, course := range courses {
		if course.CreditHours <= 0 {
			continue
		}
		totalCredits += course.CreditHours
		sum += course.Points * float64(course.CreditHours)
	}
	if totalCredits == 0 {
		return nil
	}
	gpa := sum / float64(totalCredits)
	return &gpa
}
