package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/models"
	"github.com/dodokudo/autostudio/internal/service"
)

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}

	if !s.AuthService.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication is not configured"})
		return
	}
	if !s.AuthService.ValidateCode(req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid code"})
		return
	}

	token, err := s.AuthService.CreateSession()
	if err != nil {
		s.Logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleRunJobs drains due jobs and then refreshes template scores. Unit
// failures are reported inside the 200 body; only claim-level errors
// produce a 500.
func (s *Server) handleRunJobs(c *gin.Context) {
	batch, err := s.JobDispatcher.RunOnce(c.Request.Context())
	if err != nil {
		s.Logger.Error("Job dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Job dispatch failed"})
		return
	}

	scored, err := s.ScoreService.Update(c.Request.Context())
	if err != nil {
		// Scores are derived data; a sweep failure does not fail the run
		s.Logger.Error("Template score update failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"processed":        batch.Processed,
		"succeeded":        batch.Succeeded,
		"failed":           batch.Failed,
		"results":          batch.Results,
		"templates_scored": scored,
	})
}

func (s *Server) handleRunSchedules(c *gin.Context) {
	recovered, err := s.ScheduleWorker.RecoverStuck(c.Request.Context())
	if err != nil {
		s.Logger.Error("Stuck recovery failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stuck recovery failed"})
		return
	}

	batch, err := s.ScheduleDispatcher.RunOnce(c.Request.Context())
	if err != nil {
		s.Logger.Error("Schedule dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Schedule dispatch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recovered": recovered,
		"processed": batch.Processed,
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
		"results":   batch.Results,
	})
}

func (s *Server) handleExecuteComments(c *gin.Context) {
	batch, err := s.CommentExecutor.ExecuteDue(c.Request.Context())
	if err != nil {
		s.Logger.Error("Comment execution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Comment execution failed"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleListPlans(c *gin.Context) {
	summaries, err := s.PlanService.ListByDate(c.Request.Context(), c.Query("date"))
	if err != nil {
		s.Logger.Error("Failed to list plans", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": summaries})
}

func (s *Server) handleUpsertPlan(c *gin.Context) {
	var input service.PlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := s.PlanService.Upsert(c.Request.Context(), &input)
	if err != nil {
		s.Logger.Error("Failed to upsert plan", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (s *Server) handleUpdatePlanStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
		return
	}

	plan, job, err := s.PlanService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.Logger.Error("Failed to update plan status",
			zap.String("plan_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"plan": plan}
	if job != nil {
		resp["job"] = job
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResetFailedJobs(c *gin.Context) {
	var req struct {
		MessageFilter string `json:"message_filter"`
	}
	// Body is optional; no filter resets every failed job up to the cap
	_ = c.ShouldBindJSON(&req)

	jobIDs, err := s.PlanService.ResetFailedJobs(c.Request.Context(), req.MessageFilter)
	if err != nil {
		s.Logger.Error("Failed to reset failed jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": len(jobIDs), "job_ids": jobIDs})
}

func (s *Server) handleListSchedules(c *gin.Context) {
	posts, err := s.ScheduleService.List(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_posts": posts})
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	var input service.ScheduleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := s.ScheduleService.Create(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_post": post})
}

func (s *Server) handleUpdateSchedule(c *gin.Context) {
	var input service.ScheduleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := s.ScheduleService.Update(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_post": post})
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	if err := s.ScheduleService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

func (s *Server) handlePublishNow(c *gin.Context) {
	var input service.ScheduleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := s.ScheduleService.PublishNow(c.Request.Context(), &input)
	if err != nil {
		s.Logger.Error("Immediate publish failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_post": post})
}

func (s *Server) handleCreateCommentSchedule(c *gin.Context) {
	var req struct {
		PlanID         string    `json:"plan_id" binding:"required"`
		ParentThreadID string    `json:"parent_thread_id" binding:"required"`
		CommentOrder   int       `json:"comment_order" binding:"required"`
		CommentText    string    `json:"comment_text" binding:"required"`
		ScheduledAt    time.Time `json:"scheduled_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := &models.CommentSchedule{
		ScheduleID:     uuid.New().String(),
		PlanID:         req.PlanID,
		ParentThreadID: req.ParentThreadID,
		CommentOrder:   req.CommentOrder,
		CommentText:    req.CommentText,
		ScheduledAt:    req.ScheduledAt,
		Status:         models.CommentStatusPending,
	}
	if err := row.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.CommentStore.Create(c.Request.Context(), row); err != nil {
		s.Logger.Error("Failed to create comment schedule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment schedule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment_schedule": row})
}

func (s *Server) handleListLogs(c *gin.Context) {
	logs, err := s.LogStore.ListRecent(c.Request.Context(), 100)
	if err != nil {
		s.Logger.Error("Failed to list posting logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleListTemplateScores(c *gin.Context) {
	scores, err := s.ScoreService.Latest(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list template scores", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}
