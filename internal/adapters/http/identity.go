package httpadapter

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const userIDHeader = "X-User-Id"

// callerIdentity is what the service learns about the caller. The credential is
// forwarded verbatim to collaborators; signature checks belong to the identity service.
type callerIdentity struct {
	Credential string
	UserID     string
}

func identityFromRequest(r *http.Request) callerIdentity {
	credential := strings.TrimSpace(r.Header.Get("Authorization"))
	identity := callerIdentity{Credential: credential}
	if subject := subjectFromCredential(credential); subject != "" {
		identity.UserID = subject
		return identity
	}
	identity.UserID = strings.TrimSpace(r.Header.Get(userIDHeader))
	return identity
}

// subjectFromCredential reads the sub claim of a bearer JWT without verifying it.
func subjectFromCredential(credential string) string {
	const bearerPrefix = "bearer "
	if len(credential) <= len(bearerPrefix) || !strings.EqualFold(credential[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	token := strings.TrimSpace(credential[len(bearerPrefix):])
	if token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(subject)
}
