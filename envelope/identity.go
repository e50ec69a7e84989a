// Package envelope defines the data model shared across streamhub: session
// identity, the wire message envelope, subscriptions, and the tab/host wire
// protocol (spec.md §3, §6).
package envelope

import (
	"fmt"

	"github.com/yosida95/uritemplate/v3"
)

// Identity is the (baseURL, userID, credential) triple that selects one
// upstream stream (spec §3). Two identities are equal iff all three
// components are equal.
type Identity struct {
	BaseURL    string
	UserID     string
	Credential string
}

// Equal reports whether id and other select the same upstream stream.
func (id Identity) Equal(other Identity) bool {
	return id.BaseURL == other.BaseURL && id.UserID == other.UserID && id.Credential == other.Credential
}

// IsZero reports whether id carries no identity at all.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// streamURLTemplate uses the "+" reserved-expansion operator for baseurl
// and userid so that "://" and "/" survive un-escaped, while the token
// stays in the simple "?token=" form so its value is percent-encoded —
// exactly the split spec §3/§6 describes.
var streamURLTemplate = uritemplate.Must(uritemplate.New("{+baseurl}/{+userid}{?token}"))

// StreamURL derives the upstream stream URL per spec §3/§6:
// "{baseUrl}/{userId}?token={url-encoded credential}". No other query
// parameters are appended.
func (id Identity) StreamURL() (string, error) {
	vars := uritemplate.Values{}.Set("baseurl", uritemplate.String(id.BaseURL)).
		Set("userid", uritemplate.String(id.UserID)).
		Set("token", uritemplate.String(id.Credential))
	u, err := streamURLTemplate.Expand(vars)
	if err != nil {
		return "", fmt.Errorf("envelope: expand stream url: %w", err)
	}
	return u, nil
}
