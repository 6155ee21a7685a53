// Package coursefilter turns a student's academic profile into course
// search filters with the help of a generative model.
package coursefilter

import "context"

// AcademicProfile is the study preference data a suggestion is based on.
type AcademicProfile struct {
	Countries       []string `json:"countries"`
	Degree          string   `json:"degree"`
	Fields          []string `json:"fields"`
	CompletedDegree string   `json:"completedDegree"`
	CGPA            float64  `json:"cgpa"`
	GradYear        string   `json:"gradYear"`
	BudgetLakh      float64  `json:"budget"`
}

// Course is one row of the caller's course catalogue. Its shape is owned by
// the caller and forwarded to the model as-is.
type Course map[string]any

// Filters are the query parameters suggested by the model.
type Filters struct {
	Country      string   `json:"country"`
	Level        string   `json:"level"`
	Course       string   `json:"course"`
	Duration     string   `json:"duration"`
	MaxBudgetUSD *float64 `json:"maxBudgetUSD"`
	SearchQuery  string   `json:"searchQuery"`
}

// Model generates text for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
