package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/influxdata/coreraft/kit/errors"
)

// ErrorCodeHeader carries the code of an error response.
const ErrorCodeHeader = "X-Raft-Error-Code"

// ErrorHandler is the error handler in http package.
type ErrorHandler int

// HandleHTTPError encodes err with the appropriate status code and format,
// sets the X-Raft-Error-Code header on the response and sets the response
// status to the corresponding status code.
func (h ErrorHandler) HandleHTTPError(ctx context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		return
	}

	code := errors.ErrorCode(err)
	w.Header().Set(ErrorCodeHeader, code)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(errors.HTTPStatus(err))
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	e.Code = code
	if err, ok := err.(*errors.Error); ok {
		e.Message = err.Error()
	} else {
		e.Message = "An internal error has occurred"
	}
	b, _ := json.Marshal(e)
	_, _ = w.Write(b)
}
