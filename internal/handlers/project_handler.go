package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"teamflow/internal/models"
	"teamflow/internal/services"
)

type ProjectHandler struct {
	service services.ProjectService
}

func NewProjectHandler(service services.ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

type projectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type projectUpdateRequest struct {
	Name              *string    `json:"name"`
	Description       *string    `json:"description"`
	Color             *string    `json:"color"`
	StartDate         *string    `json:"start_date"`
	EndDate           *string    `json:"end_date"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at"`
}

// @Summary      Список проектов
// @Description  Projects owned by the caller, newest first. with_stats=true adds task counts and progress.
// @Tags         Projects
// @Produce      json
// @Param        with_stats  query     bool  false  "Include task statistics"
// @Success      200  {array}   models.ProjectWithStats
// @Failure      401  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if c.Query("with_stats") == "true" {
		projects, err := h.service.ListWithStats(c.Request.Context(), actor)
		if err != nil {
			respondError(c, "[project][list]", err)
			return
		}
		c.JSON(http.StatusOK, projects)
		return
	}

	projects, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "[project][list]", err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// @Summary      Получить проект
// @Tags         Projects
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Success      200  {object}  models.Project
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects/{id} [get]
func (h *ProjectHandler) GetByID(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	project, err := h.service.GetByID(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, "[project][get]", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// @Summary      Создать проект
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        project  body      projectCreateRequest  true  "Project"
// @Success      201      {object}  models.Project
// @Failure      400      {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req projectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "[project][create]", err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		badRequest(c, "[project][create]", err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		badRequest(c, "[project][create]", err)
		return
	}

	project, err := h.service.Create(c.Request.Context(), models.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		StartDate:   start,
		EndDate:     end,
	}, actor)
	if err != nil {
		respondError(c, "[project][create]", err)
		return
	}
	log.WithFields(log.Fields{"project": project.ID, "user_id": actor}).Info("[project][create] ok")
	c.JSON(http.StatusCreated, project)
}

// @Summary      Обновить проект
// @Description  Partial update. expected_updated_at makes the write conditional. An empty start_date or end_date clears it.
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Project ID"
// @Param        project  body      projectUpdateRequest  true  "Changes"
// @Success      200      {object}  models.Project
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects/{id} [put]
func (h *ProjectHandler) Update(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req projectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "[project][update]", err)
		return
	}

	patch := models.ProjectPatch{
		Name:              req.Name,
		Description:       req.Description,
		Color:             req.Color,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			badRequest(c, "[project][update]", err)
			return
		}
		patch.StartDate = start
		patch.ClearStartDate = start == nil
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			badRequest(c, "[project][update]", err)
			return
		}
		patch.EndDate = end
		patch.ClearEndDate = end == nil
	}

	project, err := h.service.Update(c.Request.Context(), c.Param("id"), patch, actor)
	if err != nil {
		respondError(c, "[project][update]", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// @Summary      Удалить проект
// @Description  Deletes the project together with all of its tasks.
// @Tags         Projects
// @Param        id   path  string  true  "Project ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id, actor); err != nil {
		respondError(c, "[project][delete]", err)
		return
	}
	log.WithFields(log.Fields{"project": id, "user_id": actor}).Info("[project][delete] ok")
	c.Status(http.StatusNoContent)
}

// @Summary      PDF-отчёт по проекту
// @Tags         Projects
// @Produce      application/pdf
// @Param        id   path  string  true  "Project ID"
// @Success      200  {file}  binary
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Security     BearerAuth
// @Router       /projects/{id}/report.pdf [get]
func (h *ProjectHandler) Report(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	doc, err := h.service.Report(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, "[project][report]", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", doc)
}
