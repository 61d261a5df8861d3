/*
Package snapshot captures the logical contents of a state backend into a
single reproducible artifact and loads such artifacts back.

The artifact is gzip-compressed JSON of {metadata, data}, where data maps
namespaces to their key/value pairs. Metadata carries the format version,
creation time, backend type, a per-artifact snapshot ID, and a SHA-256
checksum computed over the canonical (key-sorted, compact) JSON of the whole
document with the checksum field removed. The on-disk JSON is pretty-printed;
only the checksum computation uses the canonical form.

Restore is deliberately conservative: the checksum is verified first, the
current backend is backed up next to the restored file, every live namespace
is cleared, and only then is the snapshot loaded via atomic per-namespace
batch writes. A failed backup is logged but never aborts the restore; a bad
checksum or an unknown format version always does.
*/
package snapshot
