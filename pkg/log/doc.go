/*
Package log provides structured logging for LocalZure built on zerolog.

A single global logger is initialized once at process startup via Init and
shared by every component. Components derive child loggers carrying stable
fields (component, backend, vault, namespace) so emulator traffic can be
filtered per service when running with JSON output.

Console output (the default) is human-readable for interactive development;
JSON output is intended for piping into log collectors during CI runs.
*/
package log
