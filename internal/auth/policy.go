package auth

// FailureClass names a way an authentication-path dependency can fail.
type FailureClass string

const (
	// FailureRevocationStore: the key-value store could not answer a
	// blacklist lookup.
	FailureRevocationStore FailureClass = "revocation_store_unavailable"
	// FailureRateLimitStore: the key-value store could not count the request.
	FailureRateLimitStore FailureClass = "rate_limit_store_unavailable"
	// FailureBadSignature: token signature did not verify.
	FailureBadSignature FailureClass = "token_signature_invalid"
	// FailureExpired: token lifetime elapsed.
	FailureExpired FailureClass = "token_expired"
)

// Decision is the resolution applied when a failure class occurs.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// failurePolicy is the single place the fail-open/fail-closed trade-off
// lives. Infrastructure outages on the revocation and rate-limit stores
// resolve to Allow: availability is preferred over strict enforcement
// during an outage. Cryptographic failures always resolve to Deny.
var failurePolicy = map[FailureClass]Decision{
	FailureRevocationStore: Allow,
	FailureRateLimitStore:  Allow,
	FailureBadSignature:    Deny,
	FailureExpired:         Deny,
}

// PolicyFor returns the decision for a failure class. Unknown classes
// fail closed.
func PolicyFor(class FailureClass) Decision {
	d, ok := failurePolicy[class]
	if !ok {
		return Deny
	}
	return d
}
