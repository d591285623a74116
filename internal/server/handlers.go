package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/middleware"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

type errorResponse struct {
	Error string `json:"error"`
}

type createUserRequest struct {
	ID    string   `json:"id" binding:"required"`
	Roles []string `json:"roles"`
}

type rbacCheckRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

type rbacCheckResponse struct {
	Allowed bool `json:"allowed"`
}

type abacCheckRequest struct {
	User     abac.Subject     `json:"user"`
	Resource string           `json:"resource" binding:"required"`
	Action   string           `json:"action" binding:"required"`
	Context  *abac.Attributes `json:"context"`
}

type roleChangeResponse struct {
	Changed bool `json:"changed"`
}

func (s *Server) listRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": s.services.RBAC.Registry().Roles()})
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.services.RBAC.Store().Users(c.Request.Context())
	if err != nil {
		s.internalError(c, "listing users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if !s.bind(c, &req) {
		return
	}

	registry := s.services.RBAC.Registry()
	for _, roleID := range req.Roles {
		if _, ok := registry.Role(roleID); !ok {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown role %q", roleID)})
			return
		}
	}

	ctx := c.Request.Context()
	err := s.services.RBAC.Store().CreateUser(ctx, rbac.User{ID: req.ID, Roles: req.Roles})
	s.audit.LogEvent(ctx, audit.UserCreatedEvent(req.ID, req.Roles, err))

	switch {
	case errors.Is(err, rbac.ErrUserExists):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, rbac.ErrInvalidUser):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.internalError(c, "creating user", err)
		return
	}

	user, err := s.services.RBAC.Store().User(ctx, req.ID)
	if err != nil {
		s.internalError(c, "loading created user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) getUser(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) userPermissions(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	perms, err := s.services.RBAC.UserPermissions(c.Request.Context(), user.ID)
	if err != nil {
		s.internalError(c, "loading permissions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "permissions": perms})
}

func (s *Server) assignRole(c *gin.Context) {
	s.changeRole(c, audit.ActionRoleAssign, s.services.RBAC.AssignRoleToUser)
}

func (s *Server) removeRole(c *gin.Context) {
	s.changeRole(c, audit.ActionRoleRevoke, s.services.RBAC.RemoveRoleFromUser)
}

func (s *Server) changeRole(
	c *gin.Context,
	action audit.Action,
	mutate func(ctx context.Context, userID, roleID string) (bool, error),
) {
	ctx := c.Request.Context()
	userID, roleID := c.Param("id"), c.Param("role")

	changed, err := mutate(ctx, userID, roleID)
	s.audit.LogRoleChange(ctx, action, userID, roleID, changed, err)
	if err != nil {
		s.internalError(c, "changing role", err)
		return
	}
	c.JSON(http.StatusOK, roleChangeResponse{Changed: changed})
}

func (s *Server) rbacCheck(c *gin.Context) {
	var req rbacCheckRequest
	if !s.bind(c, &req) {
		return
	}
	allowed, err := s.services.RBAC.CheckAccess(c.Request.Context(), req.UserID, req.Resource, req.Action)
	if err != nil {
		s.internalError(c, "rbac check", err)
		return
	}
	c.JSON(http.StatusOK, rbacCheckResponse{Allowed: allowed})
}

func (s *Server) abacCheck(c *gin.Context) {
	var req abacCheckRequest
	if !s.bind(c, &req) {
		return
	}
	result, err := s.services.ABAC.CheckAccess(c.Request.Context(), &abac.Request{
		Subject:  req.User,
		Resource: req.Resource,
		Action:   req.Action,
		Context:  req.Context,
	})
	if err != nil {
		s.internalError(c, "abac check", err)
		return
	}
	if result.Policies == nil {
		result.Policies = []string{}
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) accessCheck(c *gin.Context) {
	var req authz.Request
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	// Roles omitted by the caller default to the stored assignment so the
	// ABAC stage sees the same roles the RBAC gate used.
	if req.User.ID != "" && len(req.User.Roles) == 0 {
		stored, err := s.services.RBAC.Store().User(ctx, req.User.ID)
		switch {
		case err == nil:
			req.User.Roles = stored.Roles
		case !errors.Is(err, rbac.ErrUserNotFound):
			s.internalError(c, "loading user", err)
			return
		}
	}

	decision, err := s.services.Authorizer.CheckAccess(ctx, &req)
	switch {
	case authz.IsInvalidRequest(err):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		s.internalError(c, "access check", err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// loadUser fetches the :id user, answering 404 or 500 itself on failure.
func (s *Server) loadUser(c *gin.Context) (rbac.User, bool) {
	user, err := s.services.RBAC.Store().User(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, rbac.ErrUserNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return rbac.User{}, false
	case err != nil:
		s.internalError(c, "loading user", err)
		return rbac.User{}, false
	}
	return user, true
}

// bind decodes the JSON body, answering 400 (or 413) itself on failure.
func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, middleware.ErrBodyTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return false
	}
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	return false
}

// internalError logs err and answers 500 without leaking backend detail.
func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.WithContext(c.Request.Context()).Error("request failed",
		observability.String("operation", op),
		observability.Error(err),
	)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
