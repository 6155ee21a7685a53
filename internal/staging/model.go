package staging

import "time"

// Registration is the unverified submission held while a passcode is outstanding.
type Registration struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Academic Academic  `json:"academic"`
	StagedAt time.Time `json:"staged_at"`
}

// Academic is the optional study-preference payload collected at sign-up.
type Academic struct {
	Countries       []string `json:"countries,omitempty"`
	Degree          string   `json:"degree,omitempty"`
	Fields          []string `json:"fields,omitempty"`
	CompletedDegree string   `json:"completed_degree,omitempty"`
	CGPA            float64  `json:"cgpa,omitempty"`
	GradYear        string   `json:"grad_year,omitempty"`
	BudgetLakh      float64  `json:"budget_lakh,omitempty"`
}
