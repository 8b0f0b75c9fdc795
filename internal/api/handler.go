package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
	"github.com/forgestack/forge/internal/forge"
)

// Handler handles API requests
type Handler struct {
	orchestrator *forge.Orchestrator
}

// NewHandler creates a new API handler
func NewHandler(o *forge.Orchestrator) *Handler {
	return &Handler{
		orchestrator: o,
	}
}

type createUserRequest struct {
	UID      string `json:"uid" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Surname  string `json:"surname"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUser provisions a new user
// POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.CreateUser(c.Request.Context(), req.UID, req.Name, req.Surname, req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"uid": req.UID}})
}

// GetUser returns one user
// GET /api/v1/users/:uid
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.orchestrator.GetUser(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// ListUsers returns every uid
// GET /api/v1/users
func (h *Handler) ListUsers(c *gin.Context) {
	uids, err := h.orchestrator.ListUIDs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": uids})
}

type editUserRequest struct {
	Name    string `json:"name" binding:"required"`
	Surname string `json:"surname"`
	Email   string `json:"email" binding:"required"`
}

// EditUser rewrites a user's mutable fields
// PUT /api/v1/users/:uid
func (h *Handler) EditUser(c *gin.Context) {
	var req editUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := &domain.User{
		UID:     c.Param("uid"),
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
	}
	if err := h.orchestrator.EditUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

// DeleteUser removes a user and every membership it holds
// DELETE /api/v1/users/:uid
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.orchestrator.DeleteUser(c.Request.Context(), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LockUser disables a user's credential
// POST /api/v1/users/:uid/lock
func (h *Handler) LockUser(c *gin.Context) {
	if err := h.orchestrator.LockUser(c.Request.Context(), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type unlockUserRequest struct {
	Password string `json:"password" binding:"required"`
}

// UnlockUser re-enables a user with a new password
// POST /api/v1/users/:uid/unlock
func (h *Handler) UnlockUser(c *gin.Context) {
	var req unlockUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.UnlockUser(c.Request.Context(), c.Param("uid"), req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MemberProjects lists the projects a user participates in
// GET /api/v1/users/:uid/projects
func (h *Handler) MemberProjects(c *gin.Context) {
	cns, err := h.orchestrator.MemberProjects(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cns})
}

// AdministeredProjects lists the projects a user administers
// GET /api/v1/users/:uid/administered
func (h *Handler) AdministeredProjects(c *gin.Context) {
	cns, err := h.orchestrator.AdministeredProjects(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cns})
}

// AdministeredUsers lists the users a user administers
// GET /api/v1/users/:uid/administered-users
func (h *Handler) AdministeredUsers(c *gin.Context) {
	uids, err := h.orchestrator.AdministeredUsers(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": uids})
}

type repoRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Public bool   `json:"public"`
	Path   string `json:"path"`
}

type createProjectRequest struct {
	CN          string       `json:"cn" binding:"required"`
	Description string       `json:"description"`
	FirstAdmin  string       `json:"first_admin" binding:"required"`
	Repo        *repoRequest `json:"repo"`
}

// CreateProject provisions a new project
// POST /api/v1/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var spec *forge.RepoSpec
	if req.Repo != nil {
		spec = &forge.RepoSpec{Kind: req.Repo.Kind, Public: req.Repo.Public, Path: req.Repo.Path}
	}
	if err := h.orchestrator.CreateProject(c.Request.Context(), req.CN, req.Description, req.FirstAdmin, spec); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"cn": req.CN}})
}

// GetProject returns one project
// GET /api/v1/projects/:cn
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.orchestrator.GetProject(c.Request.Context(), c.Param("cn"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": project})
}

// ListProjects returns every project cn
// GET /api/v1/projects
func (h *Handler) ListProjects(c *gin.Context) {
	cns, err := h.orchestrator.ListProjectCNs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cns})
}

type editProjectRequest struct {
	Description string `json:"description"`
}

// EditProject rewrites a project's mutable fields
// PUT /api/v1/projects/:cn
func (h *Handler) EditProject(c *gin.Context) {
	var req editProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project := &domain.Project{CN: c.Param("cn"), Description: req.Description}
	if err := h.orchestrator.EditProject(c.Request.Context(), project); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": project})
}

// DeleteProject removes a project and its derived artifacts
// DELETE /api/v1/projects/:cn
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.orchestrator.DeleteProject(c.Request.Context(), c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberRequest struct {
	UID string `json:"uid" binding:"required"`
}

// AddMember grants membership
// POST /api/v1/projects/:cn/members
func (h *Handler) AddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.AddUserToProject(c.Request.Context(), req.UID, c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember revokes membership
// DELETE /api/v1/projects/:cn/members/:uid
func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.orchestrator.RemoveUserFromProject(c.Request.Context(), c.Param("uid"), c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddAdmin grants the administrator role
// POST /api/v1/projects/:cn/admins
func (h *Handler) AddAdmin(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.AddAdminToProject(c.Request.Context(), req.UID, c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveAdmin revokes the administrator role
// DELETE /api/v1/projects/:cn/admins/:uid
func (h *Handler) RemoveAdmin(c *gin.Context) {
	if err := h.orchestrator.RemoveAdminFromProject(c.Request.Context(), c.Param("uid"), c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddRepository attaches a repository to a project
// POST /api/v1/projects/:cn/repos
func (h *Handler) AddRepository(c *gin.Context) {
	var req repoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.AddRepositoryToProject(c.Request.Context(), req.Kind, req.Public, req.Path, c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveRepository detaches and destroys a repository
// DELETE /api/v1/projects/:cn/repos/:kind
func (h *Handler) RemoveRepository(c *gin.Context) {
	if err := h.orchestrator.RemoveRepositoryFromProject(c.Request.Context(), c.Param("kind"), c.Param("cn")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bootstrapRequest struct {
	UID      string `json:"uid" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Bootstrap creates the superadmin user and the superadmins project
// POST /api/v1/bootstrap
func (h *Handler) Bootstrap(c *gin.Context) {
	var req bootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orchestrator.BootstrapForge(c.Request.Context(), req.UID, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"uid": req.UID}})
}

// HealthCheck reports service liveness
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps the error taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if appErr, ok := err.(*apperrors.AppError); ok {
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUniqueness, apperrors.ErrCodeInvariant:
			status = http.StatusConflict
		case apperrors.ErrCodeDirectory, apperrors.ErrCodeTracker:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
