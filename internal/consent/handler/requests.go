package handler

// GrantRequest is the body for POST /consents/grant.
type GrantRequest struct {
	Institution string `json:"institution"`
}

// RevokeRequest is the body for POST /consents/revoke.
type RevokeRequest struct {
	Institution string `json:"institution"`
}
