package keyvault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/localzure/localzure/pkg/events"
	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/state"
)

const (
	// stateNamespace is the state backend namespace holding all vault data
	stateNamespace = "keyvault"

	minRetentionDays     = 7
	maxRetentionDays     = 90
	defaultRetentionDays = 90
)

// Config configures the secret engine
type Config struct {
	// SoftDeleteEnabled moves deleted secrets to a recoverable state instead
	// of destroying them
	SoftDeleteEnabled bool

	// RetentionDays is how long soft-deleted secrets are retained before
	// becoming purgeable; clamped to [7, 90]
	RetentionDays int

	// VaultDNSSuffix forms secret identifier URLs: https://<vault>.<suffix>/...
	VaultDNSSuffix string
}

// DefaultConfig returns the engine defaults: soft delete on, 90 day
// retention, the public Azure vault DNS suffix
func DefaultConfig() Config {
	return Config{
		SoftDeleteEnabled: true,
		RetentionDays:     defaultRetentionDays,
		VaultDNSSuffix:    "vault.azure.net",
	}
}

// Engine implements the Key Vault secret data plane on top of a state
// backend
type Engine struct {
	backend state.Backend
	broker  *events.Broker
	cfg     Config
	logger  zerolog.Logger

	// mu serializes read-modify-write cycles on secret records
	mu sync.Mutex

	// now is injectable for validity-window and retention tests
	now func() time.Time
}

// NewEngine creates a secret engine backed by the given state backend. The
// broker may be nil; lifecycle events are then dropped.
func NewEngine(backend state.Backend, broker *events.Broker, cfg Config) *Engine {
	if cfg.VaultDNSSuffix == "" {
		cfg.VaultDNSSuffix = "vault.azure.net"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.RetentionDays < minRetentionDays {
		cfg.RetentionDays = minRetentionDays
	}
	if cfg.RetentionDays > maxRetentionDays {
		cfg.RetentionDays = maxRetentionDays
	}

	return &Engine{
		backend: backend,
		broker:  broker,
		cfg:     cfg,
		logger:  log.WithVault("keyvault"),
		now:     time.Now,
	}
}

func liveKey(vault, name string) string {
	return fmt.Sprintf("secret:%s:%s", vault, name)
}

func deletedKey(vault, name string) string {
	return fmt.Sprintf("deleted:%s:%s", vault, name)
}

// secretID builds the full identifier URL of a secret version
func (e *Engine) secretID(vault, name, version string) string {
	return fmt.Sprintf("https://%s.%s/secrets/%s/%s", vault, e.cfg.VaultDNSSuffix, name, version)
}

// recoveryID builds the identifier URL of a soft-deleted secret
func (e *Engine) recoveryID(vault, name string) string {
	return fmt.Sprintf("https://%s.%s/deletedsecrets/%s", vault, e.cfg.VaultDNSSuffix, name)
}

// newVersionID derives a deterministic version identifier from the secret
// name, value and creation instant, rendered in canonical UUID form
func newVersionID(name, value string, now time.Time) string {
	sum := sha256.Sum256([]byte(name + ":" + value + ":" + now.Format(time.RFC3339Nano)))
	h := hex.EncodeToString(sum[:])[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

// SetSecret creates a new version of the named secret, creating the secret
// if it does not exist. The new version becomes current.
func (e *Engine) SetSecret(ctx context.Context, vault, name string, req SetSecretRequest) (*SecretBundle, error) {
	if err := validateSecretName(name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A soft-deleted secret shadows its name until recovered or purged
	if _, found, err := e.loadRecord(ctx, deletedKey(vault, name)); err != nil {
		return nil, err
	} else if found {
		return nil, &SecretConflictError{Name: name}
	}

	rec, found, err := e.loadRecord(ctx, liveKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		rec = &secretRecord{
			Name:     name,
			Vault:    vault,
			Versions: make(map[string]SecretBundle),
		}
	}

	now := e.now()
	version := newVersionID(name, req.Value, now)

	bundle := SecretBundle{
		ID:          e.secretID(vault, name, version),
		Value:       req.Value,
		ContentType: req.ContentType,
		Tags:        req.Tags,
		Attributes: SecretAttributes{
			Enabled:       true,
			Created:       now.Unix(),
			Updated:       now.Unix(),
			RecoveryLevel: e.recoveryLevel(),
		},
	}
	if req.Attributes != nil {
		if req.Attributes.Enabled != nil {
			bundle.Attributes.Enabled = *req.Attributes.Enabled
		}
		bundle.Attributes.NotBefore = req.Attributes.NotBefore
		bundle.Attributes.Expires = req.Attributes.Expires
	}

	rec.Versions[version] = bundle
	rec.VersionOrder = append(rec.VersionOrder, version)
	rec.CurrentVersion = version

	if err := e.storeRecord(ctx, liveKey(vault, name), rec); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("vault", vault).
		Str("secret", name).
		Str("version", version).
		Msg("Secret version created")

	e.publish(events.EventSecretCreated, vault, name, version)
	return &bundle, nil
}

// GetSecret retrieves a secret version. An empty version selects the
// current version. Disabled secrets and secrets outside their validity
// window return SecretDisabledError.
func (e *Engine) GetSecret(ctx context.Context, vault, name, version string) (*SecretBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, liveKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	if version == "" {
		version = rec.CurrentVersion
	}
	bundle, ok := rec.Versions[version]
	if !ok {
		return nil, &SecretNotFoundError{Name: name, Version: version}
	}

	if err := e.checkRetrievable(name, bundle.Attributes); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// checkRetrievable enforces the enabled flag and the nbf/exp validity window
func (e *Engine) checkRetrievable(name string, attrs SecretAttributes) error {
	if !attrs.Enabled {
		return &SecretDisabledError{Name: name, Reason: "secret is disabled"}
	}
	now := e.now().Unix()
	if attrs.NotBefore != nil && now < *attrs.NotBefore {
		return &SecretDisabledError{Name: name, Reason: "secret is not yet valid"}
	}
	if attrs.Expires != nil && now > *attrs.Expires {
		return &SecretDisabledError{Name: name, Reason: "secret has expired"}
	}
	return nil
}

// ListSecrets lists the current version of every live secret in the vault,
// sorted by name. A positive max truncates the result.
func (e *Engine) ListSecrets(ctx context.Context, vault string, max int) ([]SecretItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.loadAll(ctx, "secret:"+vault+":*")
	if err != nil {
		return nil, err
	}

	items := make([]SecretItem, 0, len(records))
	for _, rec := range records {
		bundle, ok := rec.current()
		if !ok {
			continue
		}
		items = append(items, bundle.Item())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// ListSecretVersions lists every version of the named secret, newest first
func (e *Engine) ListSecretVersions(ctx context.Context, vault, name string, max int) ([]SecretItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, liveKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	// Reverse insertion order, then a stable sort on the created stamp:
	// versions written within the same second keep newest-first order
	items := make([]SecretItem, 0, len(rec.VersionOrder))
	for i := len(rec.VersionOrder) - 1; i >= 0; i-- {
		bundle, ok := rec.Versions[rec.VersionOrder[i]]
		if !ok {
			continue
		}
		items = append(items, bundle.Item())
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Attributes.Created > items[j].Attributes.Created
	})

	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// DeleteSecret deletes the named secret. With soft delete enabled the
// secret moves to the deleted store and stays recoverable for the retention
// period; otherwise it is destroyed immediately.
func (e *Engine) DeleteSecret(ctx context.Context, vault, name string) (*DeletedSecretBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, liveKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	current, _ := rec.current()

	if !e.cfg.SoftDeleteEnabled {
		if _, err := e.backend.Delete(ctx, stateNamespace, liveKey(vault, name)); err != nil {
			return nil, err
		}
		e.publish(events.EventSecretDeleted, vault, name, rec.CurrentVersion)
		return &DeletedSecretBundle{SecretBundle: current}, nil
	}

	now := e.now()
	rec.Deleted = true
	rec.DeletedDate = now.Unix()
	rec.RecoveryID = e.recoveryID(vault, name)
	rec.ScheduledPurgeDate = now.AddDate(0, 0, e.cfg.RetentionDays).Unix()

	value, err := recordToValue(rec)
	if err != nil {
		return nil, err
	}

	// Move live -> deleted atomically
	err = state.RunTransaction(ctx, e.backend, stateNamespace, func(tx *state.Transaction) error {
		if err := tx.Delete(liveKey(vault, name)); err != nil {
			return err
		}
		return tx.Set(deletedKey(vault, name), value, 0)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("vault", vault).
		Str("secret", name).
		Time("purge_after", time.Unix(rec.ScheduledPurgeDate, 0)).
		Msg("Secret soft-deleted")

	e.publish(events.EventSecretDeleted, vault, name, rec.CurrentVersion)
	return e.deletedBundle(rec, current), nil
}

// GetDeletedSecret retrieves a soft-deleted secret
func (e *Engine) GetDeletedSecret(ctx context.Context, vault, name string) (*DeletedSecretBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, deletedKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	current, _ := rec.current()
	return e.deletedBundle(rec, current), nil
}

// ListDeletedSecrets lists every soft-deleted secret in the vault
func (e *Engine) ListDeletedSecrets(ctx context.Context, vault string, max int) ([]DeletedSecretItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.loadAll(ctx, "deleted:"+vault+":*")
	if err != nil {
		return nil, err
	}

	items := make([]DeletedSecretItem, 0, len(records))
	for _, rec := range records {
		bundle, ok := rec.current()
		if !ok {
			continue
		}
		items = append(items, DeletedSecretItem{
			SecretItem:         bundle.Item(),
			RecoveryID:         rec.RecoveryID,
			DeletedDate:        rec.DeletedDate,
			ScheduledPurgeDate: rec.ScheduledPurgeDate,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// RecoverDeletedSecret moves a soft-deleted secret back to the live store
// with all versions intact
func (e *Engine) RecoverDeletedSecret(ctx context.Context, vault, name string) (*SecretBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, deletedKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	rec.Deleted = false
	rec.DeletedDate = 0
	rec.RecoveryID = ""
	rec.ScheduledPurgeDate = 0

	value, err := recordToValue(rec)
	if err != nil {
		return nil, err
	}

	err = state.RunTransaction(ctx, e.backend, stateNamespace, func(tx *state.Transaction) error {
		if err := tx.Delete(deletedKey(vault, name)); err != nil {
			return err
		}
		return tx.Set(liveKey(vault, name), value, 0)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("vault", vault).Str("secret", name).Msg("Secret recovered")
	e.publish(events.EventSecretRecovered, vault, name, rec.CurrentVersion)

	current, _ := rec.current()
	return &current, nil
}

// PurgeDeletedSecret permanently destroys a soft-deleted secret. The
// scheduled purge date is not enforced; local workflows purge at will.
func (e *Engine) PurgeDeletedSecret(ctx context.Context, vault, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, deletedKey(vault, name))
	if err != nil {
		return err
	}
	if !found {
		return &SecretNotFoundError{Name: name}
	}

	if _, err := e.backend.Delete(ctx, stateNamespace, deletedKey(vault, name)); err != nil {
		return err
	}

	e.logger.Info().Str("vault", vault).Str("secret", name).Msg("Secret purged")
	e.publish(events.EventSecretPurged, vault, name, rec.CurrentVersion)
	return nil
}

// UpdateSecretProperties patches the attributes, content type and tags of
// one secret version. The value is immutable; nil request fields are left
// unchanged. An empty version selects the current version.
func (e *Engine) UpdateSecretProperties(ctx context.Context, vault, name, version string, req UpdateSecretRequest) (*SecretBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, found, err := e.loadRecord(ctx, liveKey(vault, name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &SecretNotFoundError{Name: name}
	}

	if version == "" {
		version = rec.CurrentVersion
	}
	bundle, ok := rec.Versions[version]
	if !ok {
		return nil, &SecretNotFoundError{Name: name, Version: version}
	}

	if req.ContentType != nil {
		bundle.ContentType = *req.ContentType
	}
	if req.Tags != nil {
		bundle.Tags = req.Tags
	}
	if req.Attributes != nil {
		if req.Attributes.Enabled != nil {
			bundle.Attributes.Enabled = *req.Attributes.Enabled
		}
		if req.Attributes.NotBefore != nil {
			bundle.Attributes.NotBefore = req.Attributes.NotBefore
		}
		if req.Attributes.Expires != nil {
			bundle.Attributes.Expires = req.Attributes.Expires
		}
	}
	bundle.Attributes.Updated = e.now().Unix()

	rec.Versions[version] = bundle
	if err := e.storeRecord(ctx, liveKey(vault, name), rec); err != nil {
		return nil, err
	}

	e.publish(events.EventSecretUpdated, vault, name, version)
	return &bundle, nil
}

// SecretCounts reports live and soft-deleted secret counts across all
// vaults, for the metrics collector
func (e *Engine) SecretCounts(ctx context.Context) (int, int, error) {
	live, err := e.backend.List(ctx, stateNamespace, "secret:*")
	if err != nil {
		return 0, 0, err
	}
	deleted, err := e.backend.List(ctx, stateNamespace, "deleted:*")
	if err != nil {
		return 0, 0, err
	}
	return len(live), len(deleted), nil
}

func (e *Engine) recoveryLevel() string {
	if e.cfg.SoftDeleteEnabled {
		return RecoveryLevel
	}
	return "Purgeable"
}

func (e *Engine) deletedBundle(rec *secretRecord, current SecretBundle) *DeletedSecretBundle {
	return &DeletedSecretBundle{
		SecretBundle:       current,
		RecoveryID:         rec.RecoveryID,
		DeletedDate:        rec.DeletedDate,
		ScheduledPurgeDate: rec.ScheduledPurgeDate,
	}
}

func (e *Engine) publish(eventType events.EventType, vault, name, version string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Message: fmt.Sprintf("%s %s/%s", eventType, vault, name),
		Metadata: map[string]string{
			"vault":   vault,
			"secret":  name,
			"version": version,
		},
	})
}

// loadRecord reads and decodes one secret record from the state backend
func (e *Engine) loadRecord(ctx context.Context, key string) (*secretRecord, bool, error) {
	value, found, err := e.backend.Get(ctx, stateNamespace, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load secret record: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	rec, err := decodeRecord(value)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// loadAll reads every secret record whose state key matches the pattern
func (e *Engine) loadAll(ctx context.Context, pattern string) ([]*secretRecord, error) {
	keys, err := e.backend.List(ctx, stateNamespace, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list secret records: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := e.backend.BatchGet(ctx, stateNamespace, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load secret records: %w", err)
	}

	records := make([]*secretRecord, 0, len(values))
	for _, value := range values {
		if value == nil {
			continue
		}
		rec, err := decodeRecord(value)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Engine) storeRecord(ctx context.Context, key string, rec *secretRecord) error {
	value, err := recordToValue(rec)
	if err != nil {
		return err
	}
	if err := e.backend.Set(ctx, stateNamespace, key, value, 0); err != nil {
		return fmt.Errorf("failed to store secret record: %w", err)
	}
	return nil
}

// recordToValue renders a record as a plain map so the state serializer
// stores it as JSON
func recordToValue(rec *secretRecord) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode secret record: %w", err)
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to encode secret record: %w", err)
	}
	return value, nil
}

// decodeRecord rebuilds a record from the generic value the backend returns
func decodeRecord(value any) (*secretRecord, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret record: %w", err)
	}
	var rec secretRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode secret record: %w", err)
	}
	return &rec, nil
}
