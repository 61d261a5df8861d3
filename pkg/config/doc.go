/*
Package config loads the LocalZure YAML configuration.

Defaults come first; a config file overlays them, and CLI flags overlay the
file. A missing file is an error but a partial file is not: any field the
file omits keeps its default.
*/
package config
