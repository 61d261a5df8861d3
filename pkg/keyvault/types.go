package keyvault

import "fmt"

// RecoveryLevel reported for every secret while soft delete is enabled
const RecoveryLevel = "Recoverable+Purgeable"

// SecretAttributes carries the lifecycle attributes of one secret version.
// Timestamps are Unix seconds on the wire, matching the Key Vault data plane.
type SecretAttributes struct {
	Enabled       bool   `json:"enabled"`
	NotBefore     *int64 `json:"nbf,omitempty"`
	Expires       *int64 `json:"exp,omitempty"`
	Created       int64  `json:"created"`
	Updated       int64  `json:"updated"`
	RecoveryLevel string `json:"recoveryLevel,omitempty"`
}

// SecretBundle is a full secret version including its value
type SecretBundle struct {
	ID          string            `json:"id"`
	Value       string            `json:"value"`
	ContentType string            `json:"contentType,omitempty"`
	Attributes  SecretAttributes  `json:"attributes"`
	Tags        map[string]string `json:"tags,omitempty"`
	Managed     bool              `json:"managed,omitempty"`
}

// Item returns the value-less listing form of the bundle
func (b SecretBundle) Item() SecretItem {
	return SecretItem{
		ID:          b.ID,
		ContentType: b.ContentType,
		Attributes:  b.Attributes,
		Tags:        b.Tags,
		Managed:     b.Managed,
	}
}

// SecretItem is the listing form of a secret: everything but the value
type SecretItem struct {
	ID          string            `json:"id"`
	ContentType string            `json:"contentType,omitempty"`
	Attributes  SecretAttributes  `json:"attributes"`
	Tags        map[string]string `json:"tags,omitempty"`
	Managed     bool              `json:"managed,omitempty"`
}

// DeletedSecretBundle is a soft-deleted secret with its recovery metadata
type DeletedSecretBundle struct {
	SecretBundle
	RecoveryID         string `json:"recoveryId,omitempty"`
	DeletedDate        int64  `json:"deletedDate,omitempty"`
	ScheduledPurgeDate int64  `json:"scheduledPurgeDate,omitempty"`
}

// DeletedSecretItem is the listing form of a soft-deleted secret
type DeletedSecretItem struct {
	SecretItem
	RecoveryID         string `json:"recoveryId,omitempty"`
	DeletedDate        int64  `json:"deletedDate,omitempty"`
	ScheduledPurgeDate int64  `json:"scheduledPurgeDate,omitempty"`
}

// SetSecretRequest is the body of a set-secret call
type SetSecretRequest struct {
	Value       string             `json:"value"`
	ContentType string             `json:"contentType,omitempty"`
	Attributes  *RequestAttributes `json:"attributes,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
}

// UpdateSecretRequest is the body of an update-secret-properties call. Nil
// fields are left unchanged.
type UpdateSecretRequest struct {
	ContentType *string            `json:"contentType,omitempty"`
	Attributes  *RequestAttributes `json:"attributes,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
}

// RequestAttributes are the caller-settable subset of SecretAttributes
type RequestAttributes struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	NotBefore *int64 `json:"nbf,omitempty"`
	Expires   *int64 `json:"exp,omitempty"`
}

// secretRecord is the stored form of one secret: all of its versions plus
// soft-delete state. It lives under a single state key so every mutation of
// one secret is one backend write.
type secretRecord struct {
	Name           string                  `json:"name"`
	Vault          string                  `json:"vault"`
	Versions       map[string]SecretBundle `json:"versions"`
	VersionOrder   []string                `json:"version_order"`
	CurrentVersion string                  `json:"current_version"`

	Deleted            bool   `json:"deleted,omitempty"`
	DeletedDate        int64  `json:"deleted_date,omitempty"`
	RecoveryID         string `json:"recovery_id,omitempty"`
	ScheduledPurgeDate int64  `json:"scheduled_purge_date,omitempty"`
}

func (r *secretRecord) current() (SecretBundle, bool) {
	b, ok := r.Versions[r.CurrentVersion]
	return b, ok
}

// SecretNotFoundError indicates the named secret or version does not exist
type SecretNotFoundError struct {
	Name    string
	Version string
}

func (e *SecretNotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("secret %q version %q not found", e.Name, e.Version)
	}
	return fmt.Sprintf("secret %q not found", e.Name)
}

// SecretDisabledError indicates the secret exists but is not retrievable:
// disabled, not yet valid, or expired
type SecretDisabledError struct {
	Name   string
	Reason string
}

func (e *SecretDisabledError) Error() string {
	return fmt.Sprintf("secret %q is not retrievable: %s", e.Name, e.Reason)
}

// SecretConflictError indicates a live write collided with a soft-deleted
// secret of the same name
type SecretConflictError struct {
	Name string
}

func (e *SecretConflictError) Error() string {
	return fmt.Sprintf("secret %q is in a deleted but recoverable state", e.Name)
}

// InvalidSecretNameError indicates the secret name fails validation
type InvalidSecretNameError struct {
	Name   string
	Reason string
}

func (e *InvalidSecretNameError) Error() string {
	return fmt.Sprintf("invalid secret name %q: %s", e.Name, e.Reason)
}
