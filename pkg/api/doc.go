/*
Package api implements the LocalZure HTTP facade.

The facade is deliberately thin: it parses paths and bodies, delegates to
the Key Vault engine and the OAuth issuer, and maps their typed errors onto
Azure-shaped HTTP responses. No business logic lives here.

# Routes

Key Vault data plane (per vault):

	PUT    /{vault}/secrets/{name}                   set secret
	GET    /{vault}/secrets/{name}                   current version
	GET    /{vault}/secrets/{name}/{version}         specific version
	GET    /{vault}/secrets                          list (values elided)
	GET    /{vault}/secrets/{name}/versions          version list
	PATCH  /{vault}/secrets/{name}[/{version}]       update properties
	DELETE /{vault}/secrets/{name}                   soft delete
	GET    /{vault}/deletedsecrets                   list deleted
	GET    /{vault}/deletedsecrets/{name}            inspect deleted
	POST   /{vault}/deletedsecrets/{name}/recover    recover
	DELETE /{vault}/deletedsecrets/{name}            purge (204)

Token authority:

	POST /.localzure/oauth/token                     RFC 6749 token endpoint
	GET  /.localzure/oauth/keys                      JWKS
	GET  /.well-known/openid-configuration           OIDC discovery

Operational:

	GET /healthz                                     aggregate health
	GET /metrics                                     Prometheus metrics

The api-version query parameter is accepted on every route and ignored.
Clients authenticate against the token endpoint for realism, but the data
plane does not enforce bearer tokens; this is an emulator for development
loops, not a security boundary.

Errors use the Azure data-plane shape {"error":{"code","message"}} with 400
for invalid names, 403 for disabled or out-of-window secrets, 404 for
missing secrets and 409 for writes that collide with a soft-deleted name.
The token endpoint uses RFC 6749 error bodies instead.
*/
package api
