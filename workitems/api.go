package workitems

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayloadValidator checks a payload before it is enqueued. A nil validator
// only requires a JSON object.
type PayloadValidator func(payload []byte) error

// APIServer represents the HTTP API server for the work item queue.
type APIServer struct {
	store    *Store
	validate PayloadValidator
}

// NewAPIServer creates a new work item API server.
func NewAPIServer(store *Store, validate PayloadValidator) *APIServer {
	return &APIServer{
		store:    store,
		validate: validate,
	}
}

// SetupRouter configures the Gin router with all work item routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/workitems", s.HandleListItems)
	api.GET("/workitems/:id", s.HandleGetItem)
	api.POST("/workitems", s.HandleCreateItem)
	api.POST("/workitems/:id/retry", s.HandleRetryItem)
	api.DELETE("/workitems/:id", s.HandleDeleteItem)

	return router
}

// ListItemsResponse represents the response for GET /api/v1/workitems.
type ListItemsResponse struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, ErrStateConflict):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

func parseItemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid work item ID"))
		return uuid.Nil, false
	}
	return id, true
}

// HandleListItems handles GET /api/v1/workitems.
func (s *APIServer) HandleListItems(c *gin.Context) {
	filter := Filter{}

	if state := c.Query("state"); state != "" {
		filter.State = &state
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("validation_error", name+" must be a non-negative integer"))
			return
		}
		*dst = n
	}

	items, err := s.store.List(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if items == nil {
		items = []Item{}
	}

	c.JSON(http.StatusOK, ListItemsResponse{
		Items: items,
		Total: len(items),
	})
}

// HandleGetItem handles GET /api/v1/workitems/{id}.
func (s *APIServer) HandleGetItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	item, err := s.store.Get(id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleCreateItem handles POST /api/v1/workitems. The request body is the
// payload itself.
func (s *APIServer) HandleCreateItem(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Failed to read request body"))
		return
	}
	if !json.Valid(body) {
		s.handleError(c, ErrInvalidPayload)
		return
	}

	if s.validate != nil {
		if err := s.validate(body); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
			return
		}
	}

	item, err := s.store.Create(body)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// HandleRetryItem handles POST /api/v1/workitems/{id}/retry.
func (s *APIServer) HandleRetryItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	if err := s.store.Retry(id); err != nil {
		s.handleError(c, err)
		return
	}

	item, err := s.store.Get(id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// HandleDeleteItem handles DELETE /api/v1/workitems/{id}.
func (s *APIServer) HandleDeleteItem(c *gin.Context) {
	id, ok := parseItemID(c)
	if !ok {
		return
	}

	if err := s.store.Delete(id); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
