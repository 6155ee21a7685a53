package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/edupath/onboarding/internal/coursefilter"
)

type processFiltersRequest struct {
	Countries       []string              `json:"countries"`
	Degree          string                `json:"degree"`
	Fields          []string              `json:"fields"`
	CompletedDegree string                `json:"completedDegree"`
	CGPA            float64               `json:"cgpa"`
	GradYear        string                `json:"gradYear"`
	Budget          budget                `json:"budget"`
	CourseSample    []coursefilter.Course `json:"courseSample"`
}

// RegisterFilterRoutes wires the AI course filter endpoint.
func RegisterFilterRoutes(r fiber.Router, svc *coursefilter.Service, logger *slog.Logger) {
	r.Post("/process-filters", func(c *fiber.Ctx) error {
		var req processFiltersRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		filters, err := svc.Suggest(c.UserContext(), coursefilter.AcademicProfile{
			Countries:       req.Countries,
			Degree:          req.Degree,
			Fields:          req.Fields,
			CompletedDegree: req.CompletedDegree,
			CGPA:            req.CGPA,
			GradYear:        req.GradYear,
			BudgetLakh:      float64(req.Budget),
		}, req.CourseSample)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "filters": filters})
	})
}
