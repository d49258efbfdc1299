package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: grn", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: qty", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: converted", shared.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: deadlock", shared.ErrTransactionFailure), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.code, rr.Code)
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Status)
	}

	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: pool closed", shared.ErrTransactionFailure))
	require.NotContains(t, rr.Body.String(), "pool closed")
}

func TestBindValidates(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
		Day  *Date  `json:"day"`
	}

	var p payload
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","day":"2025-03-09"}`))
	require.NoError(t, Bind(r, &p))
	require.Equal(t, "2025-03-09", p.Day.Value().Format("2006-01-02"))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"day":"2025-03-09T10:00:00+05:00"}`))
	var missing payload
	err := Bind(r, &missing)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "Name failed required")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	var broken payload
	require.ErrorIs(t, Bind(r, &broken), shared.ErrValidation)
}

func TestDateHandlesNullAndRFC3339(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	require.True(t, d.IsZero())
	require.Nil(t, (*Date)(nil).Ptr())

	require.NoError(t, json.Unmarshal([]byte(`"2025-03-09T01:00:00+05:00"`), &d))
	require.Equal(t, "2025-03-08T20:00:00Z", d.Ptr().Format("2006-01-02T15:04:05Z07:00"))

	require.Error(t, json.Unmarshal([]byte(`"09/03/2025"`), &d))
}
