/*
Package oauth implements LocalZure's token authority: an RSA-signing JWT
issuer and a matching validator.

The issuer holds one RSA-2048 keypair for the process lifetime and signs
RS256 tokens for the client_credentials grant. Audiences are resolved from
the requested scope or resource the way Azure AD does for its well-known
.default scopes; tokens carry the fixed localzure tenant and version claims.
The key is published through a single-key JWKS document and an OIDC
discovery document.

The validator verifies signature, issuer, expiry and audience in that order
and reports the outcome as a result value rather than an error, so callers
can map each failure mode to its own HTTP response. Keys come either from a
JWKS endpoint or from an injected public key for in-process validation.
*/
package oauth
