// Package auth validates bearer tokens and answers role checks for the
// HTTP boundary.
//
// Tokens are HS256 JWTs carrying the subject, tenant and role of the caller.
// Authorization is a fixed role to action matrix; unknown roles are denied
// everything.
package auth
