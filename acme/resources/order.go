package resources

// The Identifier resource represents a subject identifier that can be
// included in a certificate.
//
// See:
// https://tools.ietf.org/html/rfc8555#section-7.5
// https://tools.ietf.org/html/rfc8555#section-9.7.7
//
// In practice most ACME servers only support "dns" type identifiers where the
// value specifies a fully qualified domain name.
type Identifier struct {
	// The Type of the Identifier value.
	Type string `json:"type"`
	// The Identifier value.
	Value string `json:"value"`
}

// Order lifecycle statuses.
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
const (
	OrderPending    = "pending"
	OrderReady      = "ready"
	OrderProcessing = "processing"
	OrderValid      = "valid"
	OrderInvalid    = "invalid"
)

// The Order resource represents a collection of identifiers that an account
// wishes to create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
//
// To understand the Status changes specified by ACME for the Order resource
// see https://tools.ietf.org/html/rfc8555#section-7.1.6
type Order struct {
	// The server-assigned URL identifying the Order.
	URL string `json:"-"`
	// The Status of the Order.
	Status string `json:"status"`
	// The Identifiers the Order wishes to finalize a Certificate for once the
	// Order is ready.
	Identifiers []Identifier `json:"identifiers"`
	// A list of URLs for Authorization resources the server specifies for the
	// Order Identifiers.
	Authorizations []string `json:"authorizations"`
	// A URL used to Finalize the Order with a CSR once the Order has a status
	// of "ready".
	Finalize string `json:"finalize"`
	// A URL used to fetch the Certificate issued by the server for the Order
	// after being Finalized. Present and non-empty when the Order has
	// a status of "valid".
	Certificate string `json:"certificate,omitempty"`
}

// String returns the Order's URL.
func (o Order) String() string {
	return o.URL
}

// DomainSet returns the order's DNS identifier values as a set. Two orders
// cover the same domains exactly when their DomainSets are equal, regardless
// of identifier ordering.
func (o Order) DomainSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.Identifiers))
	for _, ident := range o.Identifiers {
		set[ident.Value] = struct{}{}
	}
	return set
}
