package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

// Codes meaning the customer's card was refused rather than the request
// being malformed.
var declineCodes = map[sq.ErrorCode]bool{
	sq.ErrorCodeCardDeclined:               true,
	sq.ErrorCodeCvvFailure:                 true,
	sq.ErrorCodeAddressVerificationFailure: true,
	sq.ErrorCodeInsufficientFunds:          true,
	sq.ErrorCodeCardExpired:                true,
	sq.ErrorCodeGenericDecline:             true,
	sq.ErrorCodeInvalidExpiration:          true,
	sq.ErrorCodeTransactionLimit:           true,
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusPaymentRequired:     pkgerrors.CodePaymentFailed,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnprocessableEntity: pkgerrors.CodeValidation,
}

// mapError turns an SDK failure into a typed error. The body's error list
// wins over the HTTP status: Square answers some declines with a 400.
func mapError(err error, op string) error {
	msg := "square " + strings.ReplaceAll(op, "_", " ") + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}

	code, ok := statusCodes[apiErr.StatusCode]
	if !ok {
		code = pkgerrors.CodeDependency
	}
	var reason sq.ErrorCode
scan:
	for _, e := range responseErrors(apiErr) {
		switch {
		case declineCodes[e.Code]:
			code, reason = pkgerrors.CodePaymentFailed, e.Code
		case e.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case e.Category == sq.ErrorCategoryAuthenticationError:
			// our credentials, not the caller's
			code = pkgerrors.CodeDependency
		default:
			continue
		}
		break scan
	}

	mapped := pkgerrors.Wrap(code, err, msg)
	if reason != "" {
		mapped = mapped.WithDetails(map[string]string{"reason": string(reason)})
	}
	return mapped
}

// responseErrors decodes the "errors" array the SDK leaves in the wrapped
// error's text.
func responseErrors(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}
