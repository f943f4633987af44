// Package auth provides bearer-token authentication for the reference backend.
//
// Tokens are HS256 JWTs signed with the configured secret; the "sub" claim
// names the user. OptionalMiddleware attaches the verified subject to the
// request context and lets anonymous requests through, so handlers decide
// what needs a login:
//
//	verifier := auth.NewJWTVerifier(secret)
//	handler = auth.OptionalMiddleware(verifier, logger)(handler)
//
//	if subject := auth.SubjectFromContext(r.Context()); subject == "" {
//	    // anonymous
//	}
package auth
