package resources

// AuthorizationStatus is a closed set of the authorization states the
// validation state machine distinguishes. Raw status strings from the server
// are mapped through ParseAuthorizationStatus so that an unrecognized value
// surfaces as AuthorizationUnknown instead of disappearing into a default
// switch arm.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
type AuthorizationStatus string

const (
	AuthorizationPending AuthorizationStatus = "pending"
	AuthorizationValid   AuthorizationStatus = "valid"
	AuthorizationInvalid AuthorizationStatus = "invalid"
	AuthorizationRevoked AuthorizationStatus = "revoked"
	AuthorizationExpired AuthorizationStatus = "expired"
	// AuthorizationUnknown represents any status value the state machine
	// does not recognize. It is never expected from a conforming server.
	AuthorizationUnknown AuthorizationStatus = "unknown"
)

// ParseAuthorizationStatus maps a raw status string to the closed
// AuthorizationStatus set.
func ParseAuthorizationStatus(raw string) AuthorizationStatus {
	switch AuthorizationStatus(raw) {
	case AuthorizationPending, AuthorizationValid, AuthorizationInvalid,
		AuthorizationRevoked, AuthorizationExpired:
		return AuthorizationStatus(raw)
	}
	return AuthorizationUnknown
}

// The ACME Authorization resource represents an Account's authorization to
// issue for a specified identifier, based on interactions with associated
// Challenges. Authorization for an identifier allows issuing certificates
// containing that identifier.
//
// For information about the Authorization resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.4
type Authorization struct {
	// The server-assigned URL identifying the Authorization.
	URL string `json:"-"`
	// The raw status string of this authorization as reported by the server.
	Status string `json:"status"`
	// The identifier that the account holding this Authorization is
	// authorized to represent.
	Identifier Identifier `json:"identifier"`
	// For pending authorizations, the challenges that the client can fulfill
	// in order to prove possession of the identifier. For valid
	// authorizations, the challenge that was validated. For invalid
	// authorizations, the challenge that was attempted and failed.
	Challenges []Challenge `json:"challenges"`
	// A string representing a RFC 3339 date at which time the Authorization
	// is considered expired by the server.
	Expires string `json:"expires,omitempty"`
	// For authorizations created as a result of a newOrder request containing
	// a DNS identifier with a value that contained a wildcard prefix this
	// field MUST be present, and true.
	Wildcard bool `json:"wildcard,omitempty"`
}

// String returns the Authorization's server-assigned URL.
func (a Authorization) String() string {
	return a.URL
}

// StatusKind maps the raw Status string to the closed AuthorizationStatus
// set.
func (a Authorization) StatusKind() AuthorizationStatus {
	return ParseAuthorizationStatus(a.Status)
}

// ChallengeByType returns the authorization's challenge of the given type
// ("http-01", "tls-alpn-01", ...) or nil when the server offered none.
func (a Authorization) ChallengeByType(challType string) *Challenge {
	for i := range a.Challenges {
		if a.Challenges[i].Type == challType {
			return &a.Challenges[i]
		}
	}
	return nil
}
