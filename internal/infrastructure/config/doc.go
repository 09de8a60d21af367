// Package config provides configuration loading and validation for Verdant Core.
//
// Configuration is loaded from a YAML file with environment variable
// overrides for credentials and deployment-specific values. All sections
// carry defaults, so a minimal file only needs the site location, the
// zone list, and (when weather rules are enabled) an API key.
//
// Validation is strict: a bad zone definition or an out-of-range
// threshold fails startup rather than producing a controller that
// silently skips the offending zone.
package config
