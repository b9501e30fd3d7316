package models

// Verification service status codes. Status 0 is success; 21007 means the
// receipt was issued in the sandbox environment and must be re-verified
// there; 21005 is a transient service condition. Everything else is
// terminal-invalid.
const (
	VerifyStatusOK                  = 0
	VerifyStatusMalformedJSON       = 21000
	VerifyStatusMalformedReceipt    = 21002
	VerifyStatusNotAuthenticated    = 21003
	VerifyStatusWrongSharedSecret   = 21004
	VerifyStatusServiceUnavailable  = 21005
	VerifyStatusSubscriptionExpired = 21006
	VerifyStatusSandboxReceipt      = 21007
	VerifyStatusProductionReceipt   = 21008
	VerifyStatusAccountNotFound     = 21010
)

// ValidationResult is the ephemeral outcome of one receipt validation.
type ValidationResult struct {
	IsValid               bool
	Facts                 *EntitlementFacts
	StatusCode            int
	Reason                string
	IsTransient           bool
	IsEnvironmentMismatch bool
}

// VerifyStatusReason translates a terminal verification status into a
// human-readable reason for logs and caller-facing errors.
func VerifyStatusReason(status int) string {
	switch status {
	case VerifyStatusMalformedJSON:
		return "the request to the verification service was malformed"
	case VerifyStatusMalformedReceipt:
		return "the receipt data was malformed or missing"
	case VerifyStatusNotAuthenticated:
		return "the receipt could not be authenticated"
	case VerifyStatusWrongSharedSecret:
		return "the shared secret does not match"
	case VerifyStatusServiceUnavailable:
		return "the verification service is temporarily unavailable"
	case VerifyStatusSubscriptionExpired:
		return "the receipt is valid but the subscription has expired"
	case VerifyStatusSandboxReceipt:
		return "the receipt was issued in the sandbox environment"
	case VerifyStatusProductionReceipt:
		return "the receipt was issued in the production environment"
	case VerifyStatusAccountNotFound:
		return "the account for this receipt no longer exists"
	default:
		return "the receipt was rejected by the verification service"
	}
}
