// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the DDL for the key-value and API key tables.
//
//go:embed migrations/001_schema.sql
var Schema string
