// Package httpapi exposes the verifier operations over HTTP on a loopback
// address, for host applications that cannot link the library directly.
//
// Authentication failures are ordinary 200 responses carrying the session
// state. Non-2xx statuses are reserved for rejected input, unknown handles
// and storage failures.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/roach88/biogate/internal/audit"
	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
)

// Service is the operation set the API serves.
type Service interface {
	EnrollFingerprint(ctx context.Context, id ir.Identity, sample ir.FingerprintSample) error
	EnrollFace(ctx context.Context, id ir.Identity, img face.Image) error
	EnrollFaceEmbedding(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding) error
	Register(ctx context.Context, id ir.Identity, sample ir.FingerprintSample, img face.Image) error
	Identities(ctx context.Context) ([]ir.IdentitySummary, error)
	StartVerification(ctx context.Context, id ir.Identity) (session.Snapshot, error)
	SubmitFingerprint(ctx context.Context, handle string, sample ir.FingerprintSample) (session.Snapshot, error)
	SubmitFaceFrame(ctx context.Context, handle string, img face.Image) (session.Snapshot, error)
	Abandon(ctx context.Context, handle string) (session.Snapshot, error)
	Session(ctx context.Context, handle string) (session.Snapshot, error)
	GetAuditLog(ctx context.Context) ([]ir.AuthAttempt, error)
	AuditFor(ctx context.Context, id ir.Identity) ([]ir.AuthAttempt, error)
	VerifyAuditChain(ctx context.Context) (audit.ChainReport, error)
	SessionConfig() session.Config
	FingerprintStrategy() string
}

// Response is the envelope of every response body.
type Response struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server is the HTTP front end.
type Server struct {
	app    *fiber.App
	svc    Service
	logger *slog.Logger
	clock  func() time.Time
}

// New builds the fiber app and registers every route.
func New(svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger, clock: time.Now}

	s.app = fiber.New(fiber.Config{
		AppName:               "biogate",
		DisableStartupMessage: true,
		BodyLimit:             8 << 20,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)

	s.app.Get("/health", s.health)

	s.app.Get("/identities", s.listIdentities)
	s.app.Post("/identities/:id", s.register)
	s.app.Post("/identities/:id/fingerprint", s.enrollFingerprint)
	s.app.Post("/identities/:id/face", s.enrollFace)

	s.app.Post("/sessions", s.startSession)
	s.app.Get("/sessions/:handle", s.getSession)
	s.app.Post("/sessions/:handle/fingerprint", s.submitFingerprint)
	s.app.Post("/sessions/:handle/face", s.submitFace)
	s.app.Delete("/sessions/:handle", s.abandon)

	s.app.Get("/audit", s.auditLog)
	s.app.Get("/audit/verify", s.verifyAudit)

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := s.clock()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = statusFor(err)
		}
	}
	s.logger.Debug("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"elapsed", s.clock().Sub(start).String())
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	cfg := s.svc.SessionConfig()
	return c.JSON(Response{Status: "ok", Data: fiber.Map{
		"time":                 s.clock().UTC(),
		"fingerprint_strategy": s.svc.FingerprintStrategy(),
		"face_tolerance":       cfg.Tolerance,
		"max_frames":           cfg.MaxFrames,
	}})
}

// statusFor maps an operation error onto an HTTP status.
func statusFor(err error) int {
	switch session.CodeOf(err) {
	case session.ErrCodeInvalidInput:
		return fiber.StatusBadRequest
	case session.ErrCodeInvalidSample, session.ErrCodeInvalidEmbedding, session.ErrCodeNoFaceDetected:
		return fiber.StatusUnprocessableEntity
	case session.ErrCodeIdentityExists, session.ErrCodeInvalidState:
		return fiber.StatusConflict
	case session.ErrCodeSessionNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Response{
			Status: "error",
			Error:  &ErrorBody{Code: "HTTP_ERROR", Message: fe.Message},
		})
	}

	code := string(session.CodeOf(err))
	if code == "" {
		code = string(session.ErrCodeStorage)
	}
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(Response{
		Status: "error",
		Error:  &ErrorBody{Code: code, Message: err.Error()},
	})
}
