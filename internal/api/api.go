// Package api holds the HTTP types and routing of the imgdice REST API.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Error codes used in ErrorResponse.
const (
	INVALIDJSON        = "INVALID_JSON"
	VALIDATIONERROR    = "VALIDATION_ERROR"
	CONFIGURATIONERROR = "CONFIGURATION_ERROR"
	INVALIDTILEINDEX   = "INVALID_TILE_INDEX"
	TIMEOUT            = "TIMEOUT"
	INTERNALERROR      = "INTERNAL_ERROR"
	INVALIDQUERYPARAM  = "INVALID_QUERY_PARAMETER"
	PATHOUTSIDEROOT    = "PATH_OUTSIDE_ROOT"
	ORIGINNOTALLOWED   = "ORIGIN_NOT_ALLOWED"
)

// HealthResponseStatus is the overall service state.
type HealthResponseStatus string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// DiceRequest defines model for DiceRequest. Paths are local to the server;
// relative paths are taken from the server root and none may leave it.
type DiceRequest struct {
	Image       string  `json:"image"`
	TileIndex   string  `json:"tile_index"`
	OutDir      string  `json:"out_dir"`
	Prefix      *string `json:"prefix,omitempty"`
	FailFast    *bool   `json:"fail_fast,omitempty"`
	SkipInvalid *bool   `json:"skip_invalid,omitempty"`
	Worldfile   *bool   `json:"worldfile,omitempty"`
}

// DiceImageParams defines parameters for DiceImage.
type DiceImageParams struct {
	// Threads is the worker pool size for this job.
	Threads *int `form:"threads,omitempty" json:"threads,omitempty"`
}

// TileFailure defines model for TileFailure.
type TileFailure struct {
	Id    int    `json:"id"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DiceResponse defines model for DiceResponse.
type DiceResponse struct {
	Written   int           `json:"written"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Invalid   int           `json:"invalid"`
	Cancelled int           `json:"cancelled"`
	Tiles     []string      `json:"tiles"`
	Errors    []TileFailure `json:"errors"`
	RequestId *string       `json:"request_id,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (POST /dice)
	DiceImage(w http.ResponseWriter, r *http.Request, params DiceImageParams)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetHealth(w, r)
}

// DiceImage operation middleware
func (siw *ServerInterfaceWrapper) DiceImage(w http.ResponseWriter, r *http.Request) {
	var params DiceImageParams

	err := runtime.BindQueryParameter("form", true, false, "threads", r.URL.Query(), &params.Threads)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "threads", Err: err})
		return
	}

	siw.Handler.DiceImage(w, r, params)
}

// InvalidParamFormatError reports a query parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions registers the API routes on options.BaseRouter, or on a
// new router if none is given.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Get("/health", wrapper.GetHealth)
	r.Post("/dice", wrapper.DiceImage)

	return r
}
