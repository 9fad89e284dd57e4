package resources

import "fmt"

// Problem is a struct representing a problem document from the server.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	Type   string `json:"type,omitempty"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status,omitempty"`
}

// Error makes a Problem usable as an error value so authority-reported
// failures can travel through normal error returns.
func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", p.Type, p.Detail, p.Status)
}
