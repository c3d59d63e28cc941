package common

const (
	// AccessTokenCookieName and RefreshTokenCookieName are the HTTP-only
	// cookies that deliver the token pair to browser clients.
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"

	// AuthorizationHeaderName carries the access token for non-cookie
	// clients, in the "Bearer <token>" form.
	AuthorizationHeaderName = "Authorization"
)
