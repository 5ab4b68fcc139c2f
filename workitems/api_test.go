package workitems

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestAPI(t *testing.T, validate PayloadValidator) (*gin.Engine, *Store) {
	store := createTestStore(t)
	return NewAPIServer(store, validate).SetupRouter(), store
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHandleCreateItem_Success verifies enqueueing over HTTP
func TestHandleCreateItem_Success(t *testing.T) {
	router, store := setupTestAPI(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/workitems", samplePayload)
	require.Equal(t, http.StatusCreated, w.Code)

	var item Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, StatePending, item.State)
	assert.JSONEq(t, samplePayload, string(item.Payload))

	items, err := store.List(Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// TestHandleCreateItem_Validation verifies invalid payloads are rejected
func TestHandleCreateItem_Validation(t *testing.T) {
	validate := func(payload []byte) error {
		if !strings.Contains(string(payload), "search_term") {
			return errors.New("search_term is required")
		}
		return nil
	}
	router, store := setupTestAPI(t, validate)

	w := doRequest(router, http.MethodPost, "/api/v1/workitems", `{"topics":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "search_term is required")

	w = doRequest(router, http.MethodPost, "/api/v1/workitems", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	items, err := store.List(Filter{})
	require.NoError(t, err)
	assert.Empty(t, items, "rejected payloads are not enqueued")
}

// TestHandleListItems verifies listing, filtering and bad parameters
func TestHandleListItems(t *testing.T) {
	router, store := setupTestAPI(t, nil)

	_, err := store.Create([]byte(samplePayload))
	require.NoError(t, err)
	_, err = store.Create([]byte(samplePayload))
	require.NoError(t, err)
	_, err = store.Claim()
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/workitems?state=pending", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListItemsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	w = doRequest(router, http.MethodGet, "/api/v1/workitems?state=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/workitems?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/workitems?state=done", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

// TestHandleGetItem verifies lookups and error mapping
func TestHandleGetItem(t *testing.T) {
	router, store := setupTestAPI(t, nil)

	item, err := store.Create([]byte(samplePayload))
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/workitems/"+item.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), item.ID.String())

	w = doRequest(router, http.MethodGet, "/api/v1/workitems/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/workitems/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleRetryItem verifies failed items can be requeued
func TestHandleRetryItem(t *testing.T) {
	router, store := setupTestAPI(t, nil)

	item, err := store.Create([]byte(samplePayload))
	require.NoError(t, err)

	w := doRequest(router, http.MethodPost, "/api/v1/workitems/"+item.ID.String()+"/retry", "")
	assert.Equal(t, http.StatusConflict, w.Code, "pending items cannot be retried")

	_, err = store.Claim()
	require.NoError(t, err)
	require.NoError(t, store.Fail(item.ID, Failure{ExceptionType: ExceptionApplication, Code: CodeUnexpectedError}))

	w = doRequest(router, http.MethodPost, "/api/v1/workitems/"+item.ID.String()+"/retry", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatePending, got.State)
}

// TestHandleDeleteItem verifies deletion
func TestHandleDeleteItem(t *testing.T) {
	router, store := setupTestAPI(t, nil)

	item, err := store.Create([]byte(samplePayload))
	require.NoError(t, err)

	w := doRequest(router, http.MethodDelete, "/api/v1/workitems/"+item.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/workitems/"+item.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestCORSPreflight verifies OPTIONS requests short-circuit
func TestCORSPreflight(t *testing.T) {
	router, _ := setupTestAPI(t, nil)

	w := doRequest(router, http.MethodOptions, "/api/v1/workitems", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
