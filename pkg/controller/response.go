package controller

import (
	"net/http"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// SuccessResponse represents a successful response with data
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// PageResponse is a listing page. First and Last are the cursors of the
// previous and next pages.
type PageResponse struct {
	Data      []map[string]any `json:"data"`
	First     string           `json:"first,omitempty"`
	Last      string           `json:"last,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// Success sends a successful JSON response with HTTP 200 OK
func Success(c router.Context, data interface{}) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: middleware.RequestIDFrom(c.Request().Context()),
	})
}

// Created sends a successful JSON response with HTTP 201 Created
func Created(c router.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, SuccessResponse{
		Data:      data,
		RequestID: middleware.RequestIDFrom(c.Request().Context()),
	})
}

// NoContent sends HTTP 204 without a body.
func NoContent(c router.Context) error {
	return c.JSON(http.StatusNoContent, nil)
}

// Page sends a listing page with HTTP 200 OK.
func Page(c router.Context, page pagination.Page) error {
	return c.JSON(http.StatusOK, PageResponse{
		Data:      Records(page.Records),
		First:     page.First,
		Last:      page.Last,
		RequestID: middleware.RequestIDFrom(c.Request().Context()),
	})
}

// Error sends an error response with the appropriate HTTP status code
// It uses MapError to convert application errors to HTTP responses
func Error(c router.Context, err error) error {
	statusCode, errorResponse := MapError(c.Request().Context(), err)
	return c.JSON(statusCode, errorResponse)
}

// Record flattens a record into its fields plus an "id" key.
func Record(r document.Record) map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return out
}

// Records flattens records, never returning nil.
func Records(rs []document.Record) []map[string]any {
	out := make([]map[string]any, len(rs))
	for i, r := range rs {
		out[i] = Record(r)
	}
	return out
}
