package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/edupath/onboarding/internal/profile"
	"github.com/edupath/onboarding/internal/registration"
	"github.com/edupath/onboarding/internal/staging"
)

type initiateRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Countries       []string `json:"countries"`
	Degree          string   `json:"degree"`
	Fields          []string `json:"fields"`
	CompletedDegree string   `json:"completedDegree"`
	CGPA            float64  `json:"cgpa"`
	GradYear        string   `json:"gradYear"`
	Budget          budget   `json:"budget"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

// RegisterProfileRoutes wires the two-phase registration endpoints. The
// limiters guard initiate and verify and may be nil.
func RegisterProfileRoutes(r fiber.Router, svc *registration.Service, initiateLimit, verifyLimit fiber.Handler, logger *slog.Logger) {
	initiate := []fiber.Handler{}
	if initiateLimit != nil {
		initiate = append(initiate, initiateLimit)
	}
	initiate = append(initiate, func(c *fiber.Ctx) error {
		var req initiateRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := svc.Initiate(c.UserContext(), registration.Input{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
			Academic: staging.Academic{
				Countries:       req.Countries,
				Degree:          req.Degree,
				Fields:          req.Fields,
				CompletedDegree: req.CompletedDegree,
				CGPA:            req.CGPA,
				GradYear:        req.GradYear,
				BudgetLakh:      float64(req.Budget),
			},
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		body := fiber.Map{"success": true, "message": "OTP sent successfully"}
		if res.Code != "" {
			body["otp_code"] = res.Code
		}
		return c.Status(http.StatusOK).JSON(body)
	})
	r.Post("/initiate", initiate...)

	verify := []fiber.Handler{}
	if verifyLimit != nil {
		verify = append(verify, verifyLimit)
	}
	verify = append(verify, func(c *fiber.Ctx) error {
		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		p, err := svc.Verify(c.UserContext(), req.Phone, req.OTP)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"success": true,
			"profile": fiber.Map{"name": p.Name, "email": p.Email, "phone": p.Phone},
		})
	})
	r.Post("/verify", verify...)

	r.Get("/detail/:phone", func(c *fiber.Ctx) error {
		p, err := svc.GetProfile(c.UserContext(), c.Params("phone"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "profile": profileView(p)})
	})
}

func profileView(p profile.Profile) fiber.Map {
	return fiber.Map{
		"id":          p.ID,
		"name":        p.Name,
		"email":       p.Email,
		"phone":       p.Phone,
		"is_verified": p.IsVerified,
		"created_at":  p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  p.UpdatedAt.Format(time.RFC3339Nano),
	}
}
