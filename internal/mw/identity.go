package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/internal/scope"
)

// Identity headers set by the authenticating gateway in front of the service.
const (
	OperatorIDHeader   = "X-Operator-ID"
	OperatorRoleHeader = "X-Operator-Role"
)

const (
	operatorKey = "mw.operator"
	scopeKey    = "mw.scope"
)

// ScopeSource computes an operator's warehouse scope.
type ScopeSource interface {
	ScopeFor(ctx context.Context, op scope.Operator) (scope.Scope, error)
}

// Identity trusts the gateway's identity headers and attaches the operator and
// its scope to the request. Scope is always computed here, never taken from the caller.
func Identity(source ScopeSource, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(OperatorIDHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing operator identity", "kind": "unauthenticated"})
			return
		}

		role := scope.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(OperatorRoleHeader))))
		switch role {
		case "":
			role = scope.RoleOperator
		case scope.RoleOperator, scope.RoleAdmin:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown operator role", "kind": "unauthenticated"})
			return
		}

		op := scope.Operator{ID: id, Role: role}
		sc, err := source.ScopeFor(c.Request.Context(), op)
		if err != nil {
			log.WithError(err).WithField("operator", id).Error("failed to compute operator scope")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load operator scope", "kind": "internal"})
			return
		}

		c.Set(operatorKey, op)
		c.Set(scopeKey, sc)
		c.Next()
	}
}

// Operator returns the identity attached by Identity.
func Operator(c *gin.Context) scope.Operator {
	if v, ok := c.Get(operatorKey); ok {
		return v.(scope.Operator)
	}
	return scope.Operator{}
}

// Scope returns the scope attached by Identity. Without one the scope is empty.
func Scope(c *gin.Context) scope.Scope {
	if v, ok := c.Get(scopeKey); ok {
		return v.(scope.Scope)
	}
	return scope.Of()
}

// RequireAdmin rejects non-admin operators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Operator(c).Role.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required", "kind": "forbidden"})
			return
		}
		c.Next()
	}
}
