package cmd

import (
	"net/http"

	"github.com/gogf/gf/v2/errors/gcode"
	"github.com/gogf/gf/v2/errors/gerror"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/Malowking/textverse/core/errors"
)

// MiddlewareJSONResponse writes the handler response object as plain JSON.
// Errors become {"detail": "..."} with a status taken from the error code.
func MiddlewareJSONResponse(r *ghttp.Request) {
	r.Middleware.Next()

	// There's custom buffer content, it then exits current handler.
	if r.Response.BufferLength() > 0 || r.Response.Writer.BytesWritten() > 0 {
		return
	}

	err := r.GetError()
	if err == nil {
		if res := r.GetHandlerResponse(); res != nil {
			r.Response.WriteJson(res)
		}
		return
	}

	status, detail := errorResponse(err)
	if status >= http.StatusInternalServerError {
		g.Log().Errorf(r.Context(), "%s %s failed: %+v", r.Method, r.URL.Path, err)
	}
	r.Response.WriteHeader(status)
	r.Response.WriteJson(g.Map{"detail": detail})
}

// errorResponse maps a handler error to an HTTP status and a client-safe message.
func errorResponse(err error) (int, string) {
	if appErr := errors.GetAppError(err); appErr != nil {
		status := appErr.Code.HTTPStatusCode()
		if status >= http.StatusInternalServerError {
			return status, http.StatusText(status)
		}
		return status, appErr.Message
	}
	switch gerror.Code(err) {
	case gcode.CodeValidationFailed, gcode.CodeInvalidParameter, gcode.CodeMissingParameter:
		return http.StatusUnprocessableEntity, err.Error()
	case gcode.CodeNotFound:
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// statusNotFound gives unmatched requests a JSON detail. A registered path
// requested with another method gets 405.
func statusNotFound(r *ghttp.Request) {
	if r.Response.BufferLength() > 0 {
		return
	}
	status := http.StatusNotFound
	for _, item := range r.Server.GetRoutes() {
		if item.IsServiceHandler && item.Route == r.URL.Path {
			status = http.StatusMethodNotAllowed
			break
		}
	}
	r.Response.WriteHeader(status)
	r.Response.WriteJson(g.Map{"detail": http.StatusText(status)})
}
