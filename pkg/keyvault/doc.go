/*
Package keyvault implements the Key Vault secret data plane: versioned
secrets with validity windows, soft delete and recovery.

All state lives in the "keyvault" namespace of the state backend. One state
key holds one secret with all of its versions, so a mutation is a single
read-modify-write cycle guarded by the engine mutex:

	secret:<vault>:<name>    live secret record
	deleted:<vault>:<name>   soft-deleted secret record

Soft delete moves the whole record between the two keys in a backend
transaction. While a record sits under deleted:, its name is shadowed: reads
miss, writes conflict, and only recover or purge can release it. Purge is
allowed at any time; the scheduled purge date is bookkeeping for clients,
not an enforcement gate.

Version identifiers are derived from the secret name, value and creation
instant, rendered as UUIDs to match what Azure SDK clients expect to parse
out of secret URLs.
*/
package keyvault
