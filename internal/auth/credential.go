package auth

import (
	"net/http"
	"strings"

	"github.com/openpdv/pdvhost/internal/model"
)

// Header names accepted from terminals that cannot send Basic auth.
const (
	HeaderDeviceSerial = "X-Device-Serial"
	HeaderDeviceKey    = "X-Device-Key"
)

// CredentialFromRequest extracts the caller's credential.
// Basic auth takes precedence over the device headers. The returned
// credential may be empty; the gate rejects it.
func CredentialFromRequest(r *http.Request) model.Credential {
	if id, secret, ok := r.BasicAuth(); ok {
		return model.Credential{
			Identifier: strings.TrimSpace(id),
			Secret:     secret,
		}
	}
	return model.Credential{
		Identifier: strings.TrimSpace(r.Header.Get(HeaderDeviceSerial)),
		Secret:     r.Header.Get(HeaderDeviceKey),
	}
}
