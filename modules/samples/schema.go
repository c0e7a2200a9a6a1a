package samples

import _ "embed"

// Schema is the DDL materialized into every tenant schema. Passed to the
// tenant lifecycle manager at startup.
//
//go:embed schema.sql
var Schema string
