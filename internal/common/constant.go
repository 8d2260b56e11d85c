package common

// DefaultStoreID is the tenant used when no session (or a session without a
// store) is available, e.g. before login.
const DefaultStoreID = "default_store"

// AuthorizationHeaderName carries the bearer access token on HTTP requests.
const AuthorizationHeaderName = "Authorization"
