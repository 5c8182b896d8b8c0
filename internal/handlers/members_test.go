package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"taskify/backend/internal/handlers"
	"taskify/backend/internal/models"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMemberRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := handlers.NewMemberHandler(openTestDB(t), services.NewMemberService(), nil)

	router := gin.New()
	router.POST("/members", handler.AddMember)
	router.GET("/members", handler.ListMembers)
	router.GET("/members/:id", handler.GetMember)
	return router
}

func TestMembers_AddAndList(t *testing.T) {
	router := setupMemberRouter(t)

	w := doJSON(router, http.MethodPost, "/members", map[string]interface{}{"name": "Ada Lovelace", "email": "ada@example.com", "age": 36})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	w = doJSON(router, http.MethodPost, "/members", map[string]interface{}{"name": "Grace Hopper", "email": "grace@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/members", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Members []models.Member `json:"members"`
		Total   int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "Ada Lovelace", body.Members[0].Name)
	assert.Nil(t, body.Members[1].Age)
}

func TestMembers_ValidationFailure(t *testing.T) {
	router := setupMemberRouter(t)

	w := doJSON(router, http.MethodPost, "/members", map[string]interface{}{"name": "A", "email": "not-an-email", "age": -1})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "age")
}

func TestMembers_Get(t *testing.T) {
	router := setupMemberRouter(t)
	w := doJSON(router, http.MethodPost, "/members", map[string]interface{}{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/members/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/members/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"member not found"}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/members/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
