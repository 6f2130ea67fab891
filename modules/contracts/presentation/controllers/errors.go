package controllers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
	"github.com/iota-uz/contracts/pkg/httpapi"
	"github.com/iota-uz/contracts/pkg/serrors"
)

var validate = validator.New()

func writeServiceError(w http.ResponseWriter, err error) {
	var missing *docs.MissingVariablesError
	if errors.As(err, &missing) {
		meta := map[string]string{}
		for _, n := range missing.Names {
			meta[n] = "required"
		}
		_ = httpapi.WriteError(w, http.StatusBadRequest, "DOC_MISSING_VARIABLES", missing.Error(), meta)
		return
	}

	code := serrors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case "CONTRACT_NOT_FOUND", "TEMPLATE_NOT_FOUND", "FLOW_NOT_FOUND", "APPROVAL_NOT_FOUND":
		status = http.StatusNotFound
	case "FLOW_INVALID", "FIELD_REQUIRED", "DOC_SIGNATURE_NOT_IMAGE":
		status = http.StatusBadRequest
	case "APPROVAL_NOT_AUTHORIZED":
		status = http.StatusForbidden
	case "CONTRACT_INVALID_STATE", "APPROVAL_STEP_NOT_CURRENT", "APPROVAL_SIGNATURE_REQUIRED",
		"APPROVAL_SIGNATURE_NOT_EXPECTED", "APPROVAL_ALREADY_SIGNED",
		"FLOW_NOT_DEFINED", "FLOW_IN_USE", "FLOW_OVERRIDE_NOT_ALLOWED":
		status = http.StatusConflict
	case "":
		code = "INTERNAL"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	_ = httpapi.WriteError(w, status, code, message, nil)
}

func writeValidationError(w http.ResponseWriter, err error) {
	meta := map[string]string{}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		for _, f := range vErrs {
			meta[f.Field()] = f.Tag()
		}
	}
	_ = httpapi.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request body failed validation", meta)
}
