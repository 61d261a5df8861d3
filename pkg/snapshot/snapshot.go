package snapshot

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/state"
)

// Version is the only snapshot format version this engine reads or writes
const Version = "1.0"

// Metadata describes one snapshot artifact
type Metadata struct {
	Version     string   `json:"version"`
	SnapshotID  string   `json:"snapshot_id"`
	CreatedAt   string   `json:"created_at"`
	BackendType string   `json:"backend_type"`
	Namespaces  []string `json:"namespaces"`
	TotalKeys   int      `json:"total_keys"`
	Partial     bool     `json:"partial"`
	Services    []string `json:"services,omitempty"`
	Checksum    string   `json:"checksum,omitempty"`
}

// document is the full snapshot file content (pre-gzip)
type document struct {
	Metadata Metadata                  `json:"metadata"`
	Data     map[string]map[string]any `json:"data"`
}

// IntegrityError indicates a snapshot file failed verification
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("snapshot integrity check failed: %s", e.Reason)
}

// CreateOptions selects what goes into a snapshot. With neither Namespaces
// nor Services set, every live namespace is captured.
type CreateOptions struct {
	Namespaces []string
	Services   []string
}

// RestoreOptions controls the restore path
type RestoreOptions struct {
	// Validate verifies the checksum before loading anything
	Validate bool

	// Backup snapshots the current backend next to the restored file first
	Backup bool

	// ClearExisting wipes every live namespace before loading
	ClearExisting bool
}

// DefaultRestoreOptions enables validation, backup and clearing
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{Validate: true, Backup: true, ClearExisting: true}
}

// RestoreReport summarizes a completed restore
type RestoreReport struct {
	SnapshotID         string `json:"snapshot_id"`
	NamespacesRestored int    `json:"namespaces_restored"`
	KeysRestored       int    `json:"keys_restored"`
	NamespacesCleared  int    `json:"namespaces_cleared"`
	BackupPath         string `json:"backup_path,omitempty"`
}

// ValidationReport is the result of a validation-only pass; it never touches
// backend state
type ValidationReport struct {
	Valid      bool     `json:"valid"`
	Version    string   `json:"version"`
	SnapshotID string   `json:"snapshot_id"`
	CreatedAt  string   `json:"created_at"`
	Namespaces int      `json:"namespaces"`
	TotalKeys  int      `json:"total_keys"`
	ChecksumOK bool     `json:"checksum_ok"`
	Errors     []string `json:"errors,omitempty"`
}

// Manager exports and imports the logical contents of a state backend
type Manager struct {
	backend state.Backend
	logger  zerolog.Logger
	now     func() time.Time
}

// NewManager creates a snapshot manager for the given backend
func NewManager(backend state.Backend) *Manager {
	return &Manager{
		backend: backend,
		logger:  log.WithComponent("snapshot"),
		now:     time.Now,
	}
}

// Create writes a gzip-compressed snapshot of the selected namespaces to path
func (m *Manager) Create(ctx context.Context, path string, opts CreateOptions) (*Metadata, error) {
	namespaces, partial, err := m.targetNamespaces(ctx, opts)
	if err != nil {
		return nil, err
	}

	data := make(map[string]map[string]any, len(namespaces))
	totalKeys := 0
	for _, ns := range namespaces {
		keys, err := m.backend.List(ctx, ns, "*")
		if err != nil {
			return nil, fmt.Errorf("failed to list namespace %s: %w", ns, err)
		}

		entries := make(map[string]any, len(keys))
		for _, key := range keys {
			v, found, err := m.backend.Get(ctx, ns, key)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s/%s: %w", ns, key, err)
			}
			if !found || v == nil {
				continue
			}
			entries[key] = v
		}
		data[ns] = entries
		totalKeys += len(entries)
	}

	doc := document{
		Metadata: Metadata{
			Version:     Version,
			SnapshotID:  uuid.New().String(),
			CreatedAt:   m.now().UTC().Format(time.RFC3339),
			BackendType: m.backend.Type(),
			Namespaces:  namespaces,
			TotalKeys:   totalKeys,
			Partial:     partial,
			Services:    opts.Services,
		},
		Data: data,
	}

	checksum, err := computeChecksum(doc)
	if err != nil {
		return nil, err
	}
	doc.Metadata.Checksum = checksum

	if err := writeArtifact(path, doc); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("path", path).
		Str("snapshot_id", doc.Metadata.SnapshotID).
		Int("namespaces", len(namespaces)).
		Int("keys", totalKeys).
		Bool("partial", partial).
		Msg("snapshot created")

	meta := doc.Metadata
	return &meta, nil
}

// Restore loads a snapshot into the backend: verify, back up, clear, load
func (m *Manager) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreReport, error) {
	doc, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	if doc.Metadata.Version != Version {
		return nil, &IntegrityError{Reason: fmt.Sprintf("unsupported snapshot version %q", doc.Metadata.Version)}
	}

	if opts.Validate && doc.Metadata.Checksum != "" {
		if err := verifyChecksum(doc); err != nil {
			return nil, err
		}
	}

	report := &RestoreReport{SnapshotID: doc.Metadata.SnapshotID}

	if opts.Backup {
		backupPath := fmt.Sprintf("%s.backup.%s.gz", path, m.now().Format("20060102_150405"))
		if _, err := m.Create(ctx, backupPath, CreateOptions{}); err != nil {
			// A failed backup never aborts the restore
			m.logger.Warn().Err(err).Str("path", backupPath).Msg("pre-restore backup failed")
		} else {
			report.BackupPath = backupPath
		}
	}

	if opts.ClearExisting {
		namespaces, err := m.backend.Namespaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate namespaces: %w", err)
		}
		for _, ns := range namespaces {
			if _, err := m.backend.ClearNamespace(ctx, ns); err != nil {
				return nil, fmt.Errorf("failed to clear namespace %s: %w", ns, err)
			}
			report.NamespacesCleared++
		}
	}

	for ns, entries := range doc.Data {
		if len(entries) == 0 {
			continue
		}
		if err := m.backend.BatchSet(ctx, ns, entries, 0); err != nil {
			return nil, fmt.Errorf("failed to restore namespace %s: %w", ns, err)
		}
		report.NamespacesRestored++
		report.KeysRestored += len(entries)
	}

	m.logger.Info().
		Str("path", path).
		Str("snapshot_id", report.SnapshotID).
		Int("namespaces", report.NamespacesRestored).
		Int("keys", report.KeysRestored).
		Msg("snapshot restored")

	return report, nil
}

// Validate inspects a snapshot file and reports on its integrity
func (m *Manager) Validate(ctx context.Context, path string) (*ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &ValidationReport{}

	doc, err := readArtifact(path)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report, nil
	}

	report.Version = doc.Metadata.Version
	report.SnapshotID = doc.Metadata.SnapshotID
	report.CreatedAt = doc.Metadata.CreatedAt
	report.Namespaces = len(doc.Data)
	for _, entries := range doc.Data {
		report.TotalKeys += len(entries)
	}

	if doc.Metadata.Version != Version {
		report.Errors = append(report.Errors, fmt.Sprintf("unsupported snapshot version %q", doc.Metadata.Version))
	}

	if doc.Metadata.Checksum == "" {
		report.Errors = append(report.Errors, "snapshot carries no checksum")
	} else if err := verifyChecksum(doc); err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.ChecksumOK = true
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// targetNamespaces resolves the namespace set for a snapshot: an explicit
// list wins, then a service filter, then everything the backend holds
func (m *Manager) targetNamespaces(ctx context.Context, opts CreateOptions) ([]string, bool, error) {
	if len(opts.Namespaces) > 0 {
		return opts.Namespaces, true, nil
	}

	all, err := m.backend.Namespaces(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enumerate namespaces: %w", err)
	}

	if len(opts.Services) == 0 {
		return all, false, nil
	}

	var matched []string
	for _, ns := range all {
		for _, svc := range opts.Services {
			if ns == svc || strings.HasPrefix(ns, svc+":") || strings.HasPrefix(ns, "service:"+svc) {
				matched = append(matched, ns)
				break
			}
		}
	}
	return matched, true, nil
}

// computeChecksum hashes the canonical JSON form of the document with the
// checksum field removed: sorted keys, compact separators, UTF-8
func computeChecksum(doc document) (string, error) {
	doc.Metadata.Checksum = ""

	canonical, err := canonicalJSON(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// verifyChecksum recomputes the checksum over a copy with the stored value
// stripped and compares
func verifyChecksum(doc document) error {
	stored := doc.Metadata.Checksum

	computed, err := computeChecksum(doc)
	if err != nil {
		return err
	}
	if computed != stored {
		return &IntegrityError{Reason: fmt.Sprintf("checksum mismatch: stored %s, computed %s", stored, computed)}
	}
	return nil
}

// canonicalJSON produces the checksum input form. encoding/json sorts map
// keys and emits compact output, so a marshal round-trip through a generic
// value gives sorted keys for struct fields as well.
func canonicalJSON(doc document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}
	return json.Marshal(generic)
}

// writeArtifact writes gzip-compressed, indented JSON, creating parent dirs
func writeArtifact(path string, doc document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(pretty); err != nil {
		gz.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return f.Sync()
}

// readArtifact reads and decompresses a snapshot file
func readArtifact(path string) (document, error) {
	var doc document

	f, err := os.Open(path)
	if err != nil {
		return doc, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return doc, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return doc, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return doc, nil
}
