package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"teamflow/internal/models"
	"teamflow/internal/services"
)

type TaskHandler struct {
	service services.TaskService
}

func NewTaskHandler(service services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

type taskCreateRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	ProjectID      string              `json:"project_id"`
	AssigneeID     string              `json:"assignee_id"`
	Status         models.TaskStatus   `json:"status"`   // 未着手|進行中|レビュー|完了
	Priority       models.TaskPriority `json:"priority"` // 低|中|高|緊急
	DueDate        string              `json:"due_date"`
	EstimatedHours *int                `json:"estimated_hours"`
	Progress       *int                `json:"progress"`
	Tags           []string            `json:"tags"`
}

// due_date "" and estimated_hours null clear the value.
type taskUpdateRequest struct {
	Title             *string              `json:"title"`
	Description       *string              `json:"description"`
	ProjectID         *string              `json:"project_id"`
	AssigneeID        *string              `json:"assignee_id"`
	Status            *models.TaskStatus   `json:"status"`
	Priority          *models.TaskPriority `json:"priority"`
	DueDate           *string              `json:"due_date"`
	EstimatedHours    optionalInt          `json:"estimated_hours" swaggertype:"integer"`
	Progress          *int                 `json:"progress"`
	Tags              *[]string            `json:"tags"`
	ExpectedUpdatedAt *time.Time           `json:"expected_updated_at"`
}

// @Summary      Список задач
// @Description  Tasks in the caller's projects. Categories combine with AND, values within a category with OR. List parameters may repeat or be comma separated.
// @Tags         Tasks
// @Produce      json
// @Param        search       query     string  false  "Substring of title or description"
// @Param        status       query     string  false  "Statuses"
// @Param        priority     query     string  false  "Priorities"
// @Param        project_id   query     string  false  "Project IDs"
// @Param        assignee_id  query     string  false  "Assignee IDs"
// @Param        tag          query     string  false  "Tags"
// @Success      200  {array}   models.Task
// @Failure      401  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	filter := models.TaskFilter{
		Search:      c.Query("search"),
		ProjectIDs:  queryList(c, "project_id"),
		AssigneeIDs: queryList(c, "assignee_id"),
		Tags:        queryList(c, "tag"),
	}
	for _, s := range queryList(c, "status") {
		filter.Statuses = append(filter.Statuses, models.TaskStatus(s))
	}
	for _, p := range queryList(c, "priority") {
		filter.Priorities = append(filter.Priorities, models.TaskPriority(p))
	}

	tasks, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, "[task][list]", err)
		return
	}
	log.WithFields(log.Fields{"user_id": actor, "count": len(tasks)}).Debug("[task][list] ok")
	c.JSON(http.StatusOK, tasks)
}

// @Summary      Все теги
// @Description  Distinct tags used in the caller's projects, sorted.
// @Tags         Tasks
// @Produce      json
// @Success      200  {array}  string
// @Security     BearerAuth
// @Router       /tasks/tags [get]
func (h *TaskHandler) Tags(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tags, err := h.service.GetAllTags(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "[task][tags]", err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

// @Summary      Получить задачу
// @Tags         Tasks
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  models.Task
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	task, err := h.service.GetByID(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, "[task][get]", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Создать задачу
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task  body      taskCreateRequest  true  "Task"
// @Success      201   {object}  models.Task
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req taskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "[task][create]", err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		badRequest(c, "[task][create]", err)
		return
	}

	task, err := h.service.Create(c.Request.Context(), models.TaskInput{
		Title:          req.Title,
		Description:    req.Description,
		ProjectID:      req.ProjectID,
		AssigneeID:     req.AssigneeID,
		Status:         req.Status,
		Priority:       req.Priority,
		DueDate:        due,
		EstimatedHours: req.EstimatedHours,
		Progress:       req.Progress,
		Tags:           req.Tags,
	}, actor)
	if err != nil {
		respondError(c, "[task][create]", err)
		return
	}
	log.WithFields(log.Fields{
		"task":     task.ID,
		"project":  task.ProjectID,
		"assignee": task.AssigneeID,
		"user_id":  actor,
	}).Info("[task][create] ok")
	c.JSON(http.StatusCreated, task)
}

// @Summary      Обновить задачу
// @Description  Partial update. due_date "" and estimated_hours null clear the value; expected_updated_at makes the write conditional.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Task ID"
// @Param        task  body      taskUpdateRequest  true  "Changes"
// @Success      200   {object}  models.Task
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "[task][update]", err)
		return
	}

	patch := models.TaskPatch{
		Title:             req.Title,
		Description:       req.Description,
		ProjectID:         req.ProjectID,
		AssigneeID:        req.AssigneeID,
		Status:            req.Status,
		Priority:          req.Priority,
		Progress:          req.Progress,
		Tags:              req.Tags,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	}
	if req.DueDate != nil {
		due, err := parseDate("due_date", *req.DueDate)
		if err != nil {
			badRequest(c, "[task][update]", err)
			return
		}
		patch.DueDate = due
		patch.ClearDueDate = due == nil
	}
	if req.EstimatedHours.Set {
		patch.EstimatedHours = req.EstimatedHours.Value
		patch.ClearEstimatedHours = req.EstimatedHours.Value == nil
	}

	task, err := h.service.Update(c.Request.Context(), c.Param("id"), patch, actor)
	if err != nil {
		respondError(c, "[task][update]", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Удалить задачу
// @Tags         Tasks
// @Param        id   path  string  true  "Task ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id, actor); err != nil {
		respondError(c, "[task][delete]", err)
		return
	}
	log.WithFields(log.Fields{"task": id, "user_id": actor}).Info("[task][delete] ok")
	c.Status(http.StatusNoContent)
}
