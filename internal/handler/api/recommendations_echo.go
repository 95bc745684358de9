package api

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	models "Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/service/consensus"
	"Tehama/internal/usecase"
	xhttp "Tehama/pkg/http"
	xlogger "Tehama/pkg/logger"
	"Tehama/pkg/queue"
)

// RecommendationsEchoHandler exposes the decision pipeline over HTTP.
type RecommendationsEchoHandler struct {
	logger   *xlogger.Logger
	rec      *usecase.Recommender
	history  *usecase.History
	queue    queue.QueueService
	analysts []domsvc.AnalystAgent
	stream   domrepo.QuoteStream
}

func NewRecommendationsEchoHandler(
	logger *xlogger.Logger,
	rec *usecase.Recommender,
	history *usecase.History,
	q queue.QueueService,
	analysts []domsvc.AnalystAgent,
	stream domrepo.QuoteStream,
) *RecommendationsEchoHandler {
	return &RecommendationsEchoHandler{
		logger:   logger,
		rec:      rec,
		history:  history,
		queue:    q,
		analysts: analysts,
		stream:   stream,
	}
}

func (h *RecommendationsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/recommendations", h.Produce)
	g.GET("/recommendations", h.History)
	g.POST("/scans", h.Scan)
	g.GET("/agents/status", h.AgentsStatus)
}

// Produce runs the full pipeline for one instrument and returns the
// freshly assembled recommendation.
func (h *RecommendationsEchoHandler) Produce(c echo.Context) error {
	req := &models.ProduceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	portfolio := portfolioFromRequest(req.PortfolioValue, req.Holdings)
	rec, err := h.rec.ProduceFor(c.Request().Context(), req.Instrument, portfolio, req.ApplyDeliberation)
	if err != nil {
		if errors.Is(err, consensus.ErrNoQuorum) {
			return xhttp.AppErrorResponse(c, xhttp.NoQuorumError(req.Instrument))
		}
		h.logger.Error("produce recommendation error",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError(err.Error()))
	}
	return xhttp.CreatedResponse(c, rec)
}

// History returns the newest persisted recommendations for an instrument.
func (h *RecommendationsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recs, err := h.history.Recent(c.Request().Context(), req.Instrument, req.Limit)
	if err != nil {
		h.logger.Error("history query error",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable"))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

// Scan enqueues a batch pipeline run over multiple instruments. The work
// happens on the queue workers; the response only acknowledges intake.
func (h *RecommendationsEchoHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	payload := usecase.ScanPayload{
		ScanID:            uuid.NewString(),
		Instruments:       req.Instruments,
		ApplyDeliberation: req.ApplyDeliberation,
		PortfolioValue:    req.PortfolioValue,
	}
	if err := h.queue.PublishMessage(c.Request().Context(), "scan", payload); err != nil {
		h.logger.Error("scan enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue scan"))
	}
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"scan_id":     payload.ScanID,
		"queued":      true,
		"instruments": len(req.Instruments),
	})
}

// AgentsStatus reports the analyst panel composition and feed health.
func (h *RecommendationsEchoHandler) AgentsStatus(c echo.Context) error {
	ids := make([]string, 0, len(h.analysts))
	for _, a := range h.analysts {
		ids = append(ids, a.ID())
	}
	status := map[string]interface{}{
		"analysts":         ids,
		"stream_connected": h.stream != nil && h.stream.IsConnected(),
	}
	return xhttp.SuccessResponse(c, status)
}

// portfolioFromRequest builds a portfolio view from the request. Holdings
// arrive as bare symbols, so positions are equal-weighted; the exposure
// analyst only needs the count and total.
func portfolioFromRequest(value float64, holdings []string) *models.PortfolioContext {
	p := &models.PortfolioContext{TotalValue: value}
	if len(holdings) == 0 {
		return p
	}
	per := value / float64(len(holdings))
	for _, sym := range holdings {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		p.Positions = append(p.Positions, models.Position{Symbol: sym, MarketValue: per})
	}
	return p
}
