package offer

import (
	"errors"

	"rechargehub/pkg/errutil"
)

// Evaluation failures split into two families: configuration errors
// (a misconfigured rule, fatal for the whole evaluation) and business
// outcomes (ineligible, over limit, outside window).
var (
	ErrMissingParameter = errors.New("missing rule parameter")
	ErrUnknownRuleType  = errors.New("unknown rule type")

	ErrNotEligible          = errors.New("user not eligible for offer")
	ErrOfferNotActive       = errors.New("offer not active")
	ErrPerUserLimitExceeded = errors.New("per-user redemption limit exceeded")
	ErrGlobalLimitExceeded  = errors.New("offer usage limit exceeded")
	ErrIntegrityViolation   = errors.New("product reference must be exactly one of product or supplier mapping")

	ErrOfferNotFound = errors.New("offer not found")
)

// IsConfigurationError reports whether err indicates a misconfigured
// rule set rather than a business disqualification. The segment
// computer aborts the whole run on these.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingParameter) || errors.Is(err, ErrUnknownRuleType)
}

// StatusError maps a domain failure to the transport error vocabulary.
func StatusError(err error) error {
	var base errutil.BaseError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &base):
		return base
	case errors.Is(err, ErrOfferNotFound):
		return errutil.NotFound("offer not found", err)
	case errors.Is(err, ErrNotEligible):
		return errutil.UnprocessableEntity("not_eligible", err)
	case errors.Is(err, ErrOfferNotActive):
		return errutil.UnprocessableEntity("offer_not_active", err)
	case errors.Is(err, ErrPerUserLimitExceeded):
		return errutil.Conflict("per_user_limit_exceeded", err)
	case errors.Is(err, ErrGlobalLimitExceeded):
		return errutil.Conflict("global_limit_exceeded", err)
	case errors.Is(err, ErrIntegrityViolation):
		return errutil.BadRequest("integrity_violation", err)
	case IsConfigurationError(err):
		return errutil.Internal("offer misconfigured", err)
	default:
		return errutil.Internal("redemption failed", err)
	}
}
