package interceptors

import "fmt"

// StaticTokenAuthenticator validates against a fixed set of node-id/token
// pairs loaded from config - the minimal NodeAuthenticator implementation
// this service ships; a cluster wanting real node-identity issuance(mTLS,
// short-lived tokens) can swap it without touching the interceptor itself.
type StaticTokenAuthenticator struct {
	tokens map[string]string // token -> node id
}

func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{tokens: tokens}
}

func (a *StaticTokenAuthenticator) Authenticate(token string) (string, error) {
	nodeID, ok := a.tokens[token]
	if !ok {
		return "", fmt.Errorf("unrecognized node token")
	}
	return nodeID, nil
}
