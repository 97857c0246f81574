package handlers

import (
	"net/http"

	"github.com/upb/llm-governance/services"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	if code := services.GetErrorCode(err); code != "" {
		details = withCode(details, code)
	}

	var writeErr error
	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, err.Error())

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, err.Error())

	case services.IsAdmissionError(err), services.IsBudgetError(err):
		writeErr = utils.WriteTooManyRequests(w, err.Error(), details)

	case services.IsRoutingError(err), services.IsProviderError(err):
		writeErr = utils.WriteBadGateway(w, err.Error(), details)

	case services.IsCollaboratorError(err):
		logger.Warn("collaborator unavailable", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, "")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields)+1)
		for k, v := range fields {
			details[k] = v
		}
		details["code"] = services.CodeInvalidInput
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), withCode(nil, services.CodeInvalidInput)); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func withCode(details map[string]interface{}, code string) map[string]interface{} {
	out := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["code"] = code
	return out
}
