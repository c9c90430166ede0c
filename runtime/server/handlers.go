package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/engine/blueprint"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type runRequest struct {
	BlueprintID string             `json:"blueprint_id" binding:"required_without=Blueprint"`
	Blueprint   *runtime.Blueprint `json:"blueprint"`
	RunID       string             `json:"run_id" binding:"omitempty,max=128"`
	UserID      string             `json:"user_id" binding:"required"`
	Inputs      map[string]any     `json:"inputs"`
	Async       bool               `json:"async"`
}

type evaluateRequest struct {
	Expression string         `json:"expression" binding:"required"`
	Variables  map[string]any `json:"variables"`
}

type blueprintSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBlueprints(c *gin.Context) {
	bps := s.engine.Blueprints()
	out := make([]blueprintSummary, 0, len(bps))
	for _, bp := range bps {
		out = append(out, blueprintSummary{ID: bp.ID, Name: bp.Name, Description: bp.Description, Steps: len(bp.Steps)})
	}
	c.JSON(http.StatusOK, gin.H{"blueprints": out})
}

func (s *Server) startRun(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format: " + err.Error()})
		return
	}

	req := runtime.RunRequest{RunID: body.RunID, UserID: body.UserID, Inputs: body.Inputs}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	if body.Async {
		// Reject what would fail before the run starts, while the client
		// is still listening.
		if err := s.precheck(body); err != nil {
			s.l.WarnContext(c.Request.Context(), "Async run rejected",
				"blueprint_id", body.BlueprintID,
				"run_id", req.RunID,
				"error", err)
			writeError(c, err)
			return
		}
		s.runAsync(body, req)
		c.JSON(http.StatusAccepted, gin.H{"run_id": req.RunID, "status": runtime.RunRunning})
		return
	}

	result, err := s.run(c.Request.Context(), body, req)
	if result == nil {
		s.l.ErrorContext(c.Request.Context(), "Run rejected",
			"blueprint_id", body.BlueprintID,
			"run_id", req.RunID,
			"error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) run(ctx context.Context, body runRequest, req runtime.RunRequest) (*runtime.Result, error) {
	if body.Blueprint != nil {
		return s.engine.Run(ctx, body.Blueprint, req)
	}
	return s.engine.RunByID(ctx, body.BlueprintID, req)
}

func (s *Server) precheck(body runRequest) error {
	bp := body.Blueprint
	if bp == nil {
		found, ok := s.engine.Blueprint(body.BlueprintID)
		if !ok {
			return fmt.Errorf("%w: %s", blueprint.ErrBlueprintNotFound, body.BlueprintID)
		}
		bp = &found
	}
	return bp.Validate()
}

func (s *Server) runAsync(body runRequest, req runtime.RunRequest) {
	ctx := s.baseCtx
	var cancel context.CancelFunc = func() {}
	if s.Config.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.Config.RunTimeout)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		result, err := s.run(ctx, body, req)
		if err == nil {
			return
		}
		s.l.WarnContext(ctx, "Async run finished with error",
			"blueprint_id", body.BlueprintID,
			"run_id", req.RunID,
			"error", err)
		if result == nil {
			s.recordRejected(context.WithoutCancel(ctx), body, req, err)
		}
	}()
}

// recordRejected stores a failed progress record for an async run that
// never started, so that polling the run id reports the failure.
func (s *Server) recordRejected(ctx context.Context, body runRequest, req runtime.RunRequest, cause error) {
	if s.runs == nil {
		return
	}
	blueprintID := body.BlueprintID
	if body.Blueprint != nil {
		blueprintID = body.Blueprint.ID
	}
	now := time.Now().UTC()
	p := &runtime.Progress{
		RunID:       req.RunID,
		UserID:      req.UserID,
		BlueprintID: blueprintID,
		Status:      runtime.RunFailed,
		StartedAt:   now,
		UpdatedAt:   now,
		FinishedAt:  &now,
		Steps:       []runtime.LogEntry{},
		Variables:   map[string]any{},
		Error:       cause.Error(),
	}
	if err := s.runs.SaveProgress(ctx, p); err != nil {
		s.l.ErrorContext(ctx, "Failed to record rejected run",
			"run_id", req.RunID,
			"error", err)
	}
}

func (s *Server) getRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"message": "Run lookup is not supported by the configured store"})
		return
	}
	p, err := s.runs.LoadProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) integrations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"integrations": s.engine.Integrations()})
}

func (s *Server) evaluate(c *gin.Context) {
	var body evaluateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format: " + err.Error()})
		return
	}
	result, err := s.engine.Evaluate(body.Expression, body.Variables)
	res := gin.H{"result": result}
	if err != nil {
		res["error"] = err.Error()
	}
	c.JSON(http.StatusOK, res)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, blueprint.ErrBlueprintNotFound), errors.Is(err, runtime.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch runtime.ErrorTypeOf(err) {
	case runtime.ErrorTypeValidation:
		status = http.StatusBadRequest
	case runtime.ErrorTypeConfiguration:
		status = http.StatusUnprocessableEntity
	case runtime.ErrorTypeCancelled:
		status = http.StatusRequestTimeout
	}

	res := gin.H{"message": err.Error()}
	if fe, ok := runtime.AsFlowError(err); ok {
		res["error"] = fe
	}
	c.JSON(status, res)
}
