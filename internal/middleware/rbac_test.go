package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/sklapp/skl-api/internal/models"
)

func rbacContext(t *testing.T, claims *models.JWTClaims, paramID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/"+paramID, nil)
	c.Request = req
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	return c, w
}

func TestRBACAllowsListedRole(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}, "7")

	RBAC("ADMIN", "GURU")(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsUnlistedRole(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: 2, Role: models.RoleTeacher}, "7")

	RBAC("ADMIN")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRejectsMissingClaims(t *testing.T) {
	c, w := rbacContext(t, nil, "7")

	RBAC("ADMIN")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBACSelfMatchesOwnStudent(t *testing.T) {
	studentID := int64(7)
	c, w := rbacContext(t, &models.JWTClaims{UserID: 3, Role: models.RoleStudent, StudentID: &studentID}, "7")

	RBAC("ADMIN", "GURU", "SELF")(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACSelfRejectsOtherStudent(t *testing.T) {
	studentID := int64(7)
	c, w := rbacContext(t, &models.JWTClaims{UserID: 3, Role: models.RoleStudent, StudentID: &studentID}, "8")

	RBAC("ADMIN", "GURU", "SELF")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfRequiresStudentBinding(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: 3, Role: models.RoleStudent}, "7")

	RBAC("SELF")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoles(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: 1, Role: models.RoleTeacher}, "7")

	RequireRoles(models.RoleAdmin, models.RoleTeacher)(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)
}
