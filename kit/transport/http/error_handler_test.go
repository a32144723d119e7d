package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/influxdata/coreraft/kit/errors"
	kithttp "github.com/influxdata/coreraft/kit/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeError(t *testing.T) {
	ctx := context.TODO()

	w := httptest.NewRecorder()

	kithttp.ErrorHandler(0).HandleHTTPError(ctx, nil, w)

	if w.Code != 200 {
		t.Errorf("expected status code 200, got: %d", w.Code)
	}
}

func TestEncodeErrorWithError(t *testing.T) {
	ctx := context.TODO()
	err := &errors.Error{
		Code: errors.EPanicked,
		Msg:  "member panicked",
		Err:  fmt.Errorf("disk on fire"),
	}

	w := httptest.NewRecorder()

	kithttp.ErrorHandler(0).HandleHTTPError(ctx, err, w)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errors.EPanicked, w.Header().Get(kithttp.ErrorCodeHeader))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.EPanicked, body.Code)
	assert.Equal(t, "member panicked: disk on fire", body.Message)
}

// Ensure errors without a code are reported as internal without details.
func TestEncodeErrorWithPlainError(t *testing.T) {
	w := httptest.NewRecorder()

	kithttp.ErrorHandler(0).HandleHTTPError(context.TODO(), fmt.Errorf("secret"), w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}
