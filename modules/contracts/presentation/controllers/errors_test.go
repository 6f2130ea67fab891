package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
	"github.com/iota-uz/contracts/modules/contracts/services"
	"github.com/iota-uz/contracts/pkg/httpapi"
)

func TestWriteServiceError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrContractNotFound, http.StatusNotFound, "CONTRACT_NOT_FOUND"},
		{services.ErrFlowNotFound, http.StatusNotFound, "FLOW_NOT_FOUND"},
		{services.ErrInvalidState, http.StatusConflict, "CONTRACT_INVALID_STATE"},
		{services.ErrStepNotCurrent, http.StatusConflict, "APPROVAL_STEP_NOT_CURRENT"},
		{services.ErrSignatureRequired, http.StatusConflict, "APPROVAL_SIGNATURE_REQUIRED"},
		{services.ErrNotAuthorized, http.StatusForbidden, "APPROVAL_NOT_AUTHORIZED"},
		{services.ErrFlowInvalid, http.StatusBadRequest, "FLOW_INVALID"},
		{fmt.Errorf("wrapped: %w", services.ErrNoFlowDefined), http.StatusConflict, "FLOW_NOT_DEFINED"},
		{fmt.Errorf("plain failure"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)

			var envelope httpapi.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			require.Equal(t, tc.code, envelope.Code)
		})
	}
}

func TestWriteServiceError_MissingVariables(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, &docs.MissingVariablesError{Names: []string{"title", "party"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "DOC_MISSING_VARIABLES", envelope.Code)
	require.Equal(t, "required", envelope.Meta["title"])
	require.Equal(t, "required", envelope.Meta["party"])
}
