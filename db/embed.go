// Package db carries the SQL migrations so the binary does not depend on the
// working directory.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

// Seeds hold development data. They run only on request and keep their own
// version table, apart from the schema chain.
//
//go:embed seeds/*.sql
var Seeds embed.FS
