package models

// Token pair issued by the identity backend
// Expiry of the access token is carried by its own 'exp' claim
type TokenPair struct {
	Access  string
	Refresh string
}

func (p TokenPair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}
