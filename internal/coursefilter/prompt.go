package coursefilter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxSampleSize caps the number of courses included in a prompt.
const MaxSampleSize = 20

// usdPerLakh is the conversion rate quoted to the model.
const usdPerLakh = 1200

func buildPrompt(p AcademicProfile, sample []Course) (string, error) {
	if len(sample) > MaxSampleSize {
		sample = sample[:MaxSampleSize]
	}
	courses, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode course sample: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a course filter expert. Analyze the student profile and generate appropriate course filters.\n\n")
	b.WriteString("Student Profile:\n")
	fmt.Fprintf(&b, "- Preferred Countries: %s\n", strings.Join(p.Countries, ", "))
	fmt.Fprintf(&b, "- Target Degree: %s\n", p.Degree)
	fmt.Fprintf(&b, "- Fields of Interest: %s\n", strings.Join(p.Fields, ", "))
	fmt.Fprintf(&b, "- Completed Degree: %s\n", p.CompletedDegree)
	fmt.Fprintf(&b, "- CGPA: %g/10\n", p.CGPA)
	fmt.Fprintf(&b, "- Graduation Year: %s\n", p.GradYear)
	fmt.Fprintf(&b, "- Budget: %g Lakhs INR per year (about %.0f USD)\n\n", p.BudgetLakh, p.BudgetLakh*usdPerLakh)
	b.WriteString("Course Data Sample (to understand available options):\n")
	b.Write(courses)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	return b.String(), nil
}

const instructions = `Task: Generate URL query parameters for filtering courses.

1. Country: use exact country names from the course data that match the preferred countries.
2. Level: map the target degree to a level present in the course data
   (Undergraduate -> Bachelor, Postgraduate -> Master/MSc/MA, Doctorate -> PhD, Diploma -> Diploma/Certificate).
3. Course: a title search term matching the fields of interest.
4. Duration: based on completed and target degree, e.g. "3 Years" for undergraduate, "1 Year" to "2 Years" for postgraduate.
5. maxBudgetUSD: the budget converted at 1 Lakh = 1200 USD, or null.
6. searchQuery: a general search term combining field keywords.

Return ONLY a raw JSON object, no markdown and no explanation, with this exact structure:
{
  "country": "",
  "level": "",
  "course": "",
  "duration": "",
  "maxBudgetUSD": null,
  "searchQuery": ""
}`

// parseFilters decodes a model reply, tolerating a surrounding markdown code fence.
func parseFilters(reply string) (Filters, error) {
	text := stripFence(reply)
	var f Filters
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&f); err != nil {
		return Filters{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return f, nil
}

func stripFence(reply string) string {
	text := strings.TrimSpace(reply)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(text)
}
