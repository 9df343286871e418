package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/internal/platform/privacy"
	"warden/internal/risk/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// Engine is the risk engine as seen by the HTTP adapter.
type Engine interface {
	Evaluate(ctx context.Context, req models.RequestContext) models.Verdict
	RecordLoginOutcome(ctx context.Context, outcome models.LoginOutcome) error
	ReportChallengeOutcome(ctx context.Context, ip string, passed bool) (*models.BanRecord, error)
	Ban(ctx context.Context, ip string) (*models.BanRecord, error)
	ThreatSnapshot() models.ThreatSnapshot
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/evaluate", h.HandleEvaluate)
	r.Post("/v1/login-outcomes", h.HandleLoginOutcome)
	r.Post("/v1/challenge-outcomes", h.HandleChallengeOutcome)
	r.Get("/v1/threat-snapshot", h.HandleThreatSnapshot)
	r.Get("/v1/bans/{ip}", h.HandleGetBan)
}

// HandleEvaluate scores one request context supplied by a front-end. The
// verdict is always 200; BLOCK and CHALLENGE are answers, not errors.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verdict := h.engine.Evaluate(ctx, req.ToModel())
	httputil.WriteJSON(w, http.StatusOK, toVerdictResponse(verdict))
}

// HandleLoginOutcome feeds the device profile for a fingerprint.
func (h *Handler) HandleLoginOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginOutcomeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.engine.RecordLoginOutcome(ctx, req.ToModel()); err != nil {
		h.logger.ErrorContext(ctx, "record login outcome failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleChallengeOutcome reports a solved or failed challenge. Failures climb
// the ban ladder and the resulting ban is returned.
func (h *Handler) HandleChallengeOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChallengeOutcomeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ban, err := h.engine.ReportChallengeOutcome(ctx, req.IP, *req.Passed)
	if err != nil {
		h.logger.ErrorContext(ctx, "report challenge outcome failed",
			"error", err,
			"request_id", requestID,
			"ip", privacy.AnonymizeIP(req.IP),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &ChallengeOutcomeResponse{
		IP:     models.NormalizeIP(req.IP),
		Passed: *req.Passed,
		Ban:    toBanResponse(ban),
	})
}

// HandleThreatSnapshot returns the last snapshot computed by the sweeper.
func (h *Handler) HandleThreatSnapshot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toSnapshotResponse(h.engine.ThreatSnapshot()))
}

// HandleGetBan returns the ban recorded for an address.
func (h *Handler) HandleGetBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := chi.URLParam(r, "ip")
	if err := validateIP(ip); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ban, err := h.engine.Ban(ctx, ip)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "get ban failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
				"ip", privacy.AnonymizeIP(ip),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBanResponse(ban))
}
