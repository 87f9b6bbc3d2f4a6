package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/orchestrator"
	"relay/internal/store"
	"relay/internal/task"
)

type createTaskRequest struct {
	TaskID     string     `json:"taskId" binding:"required"`
	AuthToken  string     `json:"authToken" binding:"required"`
	Input      task.Input `json:"taskInput"`
	Owner      task.Owner `json:"owner"`
	SkipChecks bool       `json:"skipChecks"`
}

type cancelTaskRequest struct {
	Reason string `json:"reason"`
}

func errorResponse(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreateTask registers the task and kicks off the run in the
// background, detached from the request context: the caller gets its 202
// immediately and the stream outlives the request.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	// Courtesy guard; the registry plus instance serialization is what
	// actually prevents a double run.
	if view, err := s.registry.Get(req.TaskID).Status(c.Request.Context()); err == nil {
		if !view.Status.IsTerminal() {
			errorResponse(c, http.StatusConflict, "task already exists with status "+string(view.Status))
			return
		}
	}

	var status task.Status
	err := s.registry.WithRetry(c.Request.Context(), req.TaskID, func(ctx context.Context, inst *orchestrator.Orchestrator) error {
		var startErr error
		status, startErr = inst.Start(ctx, orchestrator.StartParams{
			TaskID:     req.TaskID,
			AuthToken:  req.AuthToken,
			Input:      req.Input,
			Owner:      req.Owner,
			SkipChecks: req.SkipChecks,
		})
		return startErr
	})
	if err != nil {
		s.logger.Error("Create task %s failed: %v", req.TaskID, err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	taskID := req.TaskID
	go func() {
		if err := s.registry.Get(taskID).Run(context.Background()); err != nil {
			s.logger.Error("Task %s run failed: %v", taskID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"taskId": req.TaskID, "status": status})
}

func (s *Server) handleGetTask(c *gin.Context) {
	taskID := c.Param("id")
	if view, ok := s.cache.Get(taskID); ok {
		c.JSON(http.StatusOK, view)
		return
	}

	var view task.StatusView
	err := s.registry.WithRetry(c.Request.Context(), taskID, func(ctx context.Context, inst *orchestrator.Orchestrator) error {
		var statusErr error
		view, statusErr = inst.Status(ctx)
		return statusErr
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "task not found")
			return
		}
		s.logger.Error("Get task %s failed: %v", taskID, err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if view.Status.IsTerminal() {
		s.cache.Add(taskID, view)
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetEvents(c *gin.Context) {
	taskID := c.Param("id")

	var events []task.EventLogEntry
	err := s.registry.WithRetry(c.Request.Context(), taskID, func(ctx context.Context, inst *orchestrator.Orchestrator) error {
		var eventsErr error
		events, eventsErr = inst.Events(ctx)
		return eventsErr
	})
	if err != nil {
		s.logger.Error("Get events for task %s failed: %v", taskID, err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleCancelTask(c *gin.Context) {
	taskID := c.Param("id")
	var req cancelTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	var cancelled bool
	err := s.registry.WithRetry(c.Request.Context(), taskID, func(ctx context.Context, inst *orchestrator.Orchestrator) error {
		var cancelErr error
		cancelled, cancelErr = inst.Cancel(ctx, req.Reason)
		return cancelErr
	})
	if err != nil {
		s.logger.Error("Cancel task %s failed: %v", taskID, err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}
