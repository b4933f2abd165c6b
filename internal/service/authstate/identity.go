package authstate

import (
	"github.com/nkiryanov/eazynet/internal/models"
)

// Which source, if any, the signed in user comes from
type Kind int

const (
	// No decision made yet
	KindUnknown Kind = iota

	// Identity backend session, possibly alongside an OAuth session
	KindBackend

	// Only the OAuth provider session: backend exchange failed or has not happened
	KindOAuthPassthrough

	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindBackend:
		return "backend"
	case KindOAuthPassthrough:
		return "oauth"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

// Identity is the reconciled answer to "who is signed in".
// User is set for Backend and OAuthPassthrough kinds. OAuth is set whenever a provider session exists.
type Identity struct {
	Kind  Kind
	User  *models.User
	OAuth *models.OAuthSession
}

func (i Identity) Authenticated() bool {
	return i.Kind == KindBackend || i.Kind == KindOAuthPassthrough
}

// Reconcile the two identity sources. Backend session always wins over the OAuth one
func Reconcile(backendUser *models.User, oauth *models.OAuthSession) Identity {
	switch {
	case backendUser != nil:
		return Identity{Kind: KindBackend, User: backendUser, OAuth: oauth}
	case oauth != nil:
		u := oauth.User.AsUser()
		return Identity{Kind: KindOAuthPassthrough, User: &u, OAuth: oauth}
	default:
		return Identity{Kind: KindUnauthenticated}
	}
}
