// Package httpapi exposes allocation stores and observation sources over HTTP
// and provides a client that consumes the same endpoints.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

// #region types

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteWeightsRequest is the POST body of the weights endpoint.
type WriteWeightsRequest struct {
	Weights     allocation.Weights               `json:"weights" binding:"required"`
	Explanation allocation.AllocationExplanation `json:"explanation"`
}

// ObservationsQuery is the query string of the observations endpoint.
type ObservationsQuery struct {
	Start *int64 `form:"start" binding:"required"`
	End   *int64 `form:"end" binding:"required"`
}

// RunRequest is the POST body of the run endpoint.
type RunRequest struct {
	WindowStart int64                   `json:"window_start"`
	WindowEnd   int64                   `json:"window_end" binding:"gtefield=WindowStart"`
	Strategy    string                  `json:"strategy"`
	Constraints *allocation.Constraints `json:"constraints"`
	Seed        *int64                  `json:"seed"`
}

// #endregion types

// #region handlers

// Handlers serves one store and one source.
type Handlers struct {
	store  control.AllocationStore
	source control.ObservationSource
	loop   *control.Loop
	logger *zap.Logger
}

// NewHandlers binds handlers to a store and a source.
func NewHandlers(store control.AllocationStore, source control.ObservationSource) *Handlers {
	return &Handlers{store: store, source: source, logger: zap.NewNop()}
}

// WithLoop enables the run endpoint.
func (h *Handlers) WithLoop(loop *control.Loop) *Handlers {
	h.loop = loop
	return h
}

// WithLogger sets the request error logger.
func (h *Handlers) WithLogger(l *zap.Logger) *Handlers {
	h.logger = l
	return h
}

// HandleReadWeights returns the active weights as a bare object.
func (h *Handlers) HandleReadWeights(c *gin.Context) {
	w, err := h.store.ReadWeights(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// HandleWriteWeights replaces the active weights.
func (h *Handlers) HandleWriteWeights(c *gin.Context) {
	var req WriteWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := validWeights(req.Weights); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.WriteWeights(c.Request.Context(), c.Param("id"), req.Weights, req.Explanation); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleReadObservations returns aggregated observations for ?start=&end=.
func (h *Handlers) HandleReadObservations(c *gin.Context) {
	var q ObservationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "start and end are required integers"})
		return
	}
	obs, err := h.source.ReadObservations(c.Request.Context(), c.Param("id"), *q.Start, *q.End)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, obs)
}

// HandleRun runs one allocation cycle for the experiment.
func (h *Handlers) HandleRun(c *gin.Context) {
	if h.loop == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "run endpoint is disabled"})
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	res, err := h.loop.RunOnce(c.Request.Context(), control.RunRequest{
		ExperimentID: c.Param("id"),
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
		Strategy:     req.Strategy,
		Constraints:  req.Constraints,
		Seed:         req.Seed,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// #endregion handlers

func statusFor(err error) int {
	var (
		verr     *allocation.ValidationError
		unknown  *allocation.UnknownStrategyError
		mismatch *allocation.VariantMismatchError
	)
	switch {
	case errors.Is(err, state.ErrNoActiveWeights):
		return http.StatusNotFound
	case errors.As(err, &verr), errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.As(err, &mismatch):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func validWeights(w allocation.Weights) error {
	obs := make(allocation.Observations, len(w))
	for id := range w {
		obs[id] = allocation.Observation{}
	}
	return allocation.ValidatePreviousWeights(w, obs, 1e-9)
}
