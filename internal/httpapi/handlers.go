package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
)

// FingerprintRequest carries a raw fingerprint sample.
type FingerprintRequest struct {
	Sample []float64 `json:"sample"`
}

// FaceRequest carries either an encoded image (base64 in JSON) or a
// precomputed embedding.
type FaceRequest struct {
	Image     []byte    `json:"image,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// RegisterRequest carries both factors of a new identity.
type RegisterRequest struct {
	Sample []float64 `json:"sample"`
	Image  []byte    `json:"image"`
}

// StartRequest opens a verification session.
type StartRequest struct {
	Identity string `json:"identity"`
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Status: "ok", Data: data})
}

func (s *Server) listIdentities(c *fiber.Ctx) error {
	ids, err := s.svc.Identities(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, ids)
}

func (s *Server) register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	id := ir.Identity(c.Params("id"))
	if err := s.svc.Register(c.UserContext(), id, req.Sample, face.Image(req.Image)); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(Response{Status: "ok", Data: fiber.Map{"identity": id}})
}

func (s *Server) enrollFingerprint(c *fiber.Ctx) error {
	var req FingerprintRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	id := ir.Identity(c.Params("id"))
	if err := s.svc.EnrollFingerprint(c.UserContext(), id, req.Sample); err != nil {
		return err
	}
	return ok(c, fiber.Map{"identity": id, "factor": "fingerprint"})
}

func (s *Server) enrollFace(c *fiber.Ctx) error {
	var req FaceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	id := ir.Identity(c.Params("id"))

	var err error
	switch {
	case len(req.Embedding) > 0:
		err = s.svc.EnrollFaceEmbedding(c.UserContext(), id, req.Embedding)
	case len(req.Image) > 0:
		err = s.svc.EnrollFace(c.UserContext(), id, face.Image(req.Image))
	default:
		return fiber.NewError(fiber.StatusBadRequest, "one of image or embedding is required")
	}
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"identity": id, "factor": "face"})
}

func (s *Server) startSession(c *fiber.Ctx) error {
	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	snap, err := s.svc.StartVerification(c.UserContext(), ir.Identity(req.Identity))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(Response{Status: "ok", Data: snap})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	snap, err := s.svc.Session(c.UserContext(), c.Params("handle"))
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (s *Server) submitFingerprint(c *fiber.Ctx) error {
	var req FingerprintRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	snap, err := s.svc.SubmitFingerprint(c.UserContext(), c.Params("handle"), req.Sample)
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (s *Server) submitFace(c *fiber.Ctx) error {
	var req FaceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	snap, err := s.svc.SubmitFaceFrame(c.UserContext(), c.Params("handle"), face.Image(req.Image))
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (s *Server) abandon(c *fiber.Ctx) error {
	snap, err := s.svc.Abandon(c.UserContext(), c.Params("handle"))
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (s *Server) auditLog(c *fiber.Ctx) error {
	var (
		attempts []ir.AuthAttempt
		err      error
	)
	if id := c.Query("identity"); id != "" {
		attempts, err = s.svc.AuditFor(c.UserContext(), ir.Identity(id))
	} else {
		attempts, err = s.svc.GetAuditLog(c.UserContext())
	}
	if err != nil {
		return err
	}
	return ok(c, attempts)
}

func (s *Server) verifyAudit(c *fiber.Ctx) error {
	report, err := s.svc.VerifyAuditChain(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, report)
}
