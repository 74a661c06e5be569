// Package migrations embeds the SQL schema for every supported dialect.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql mysql/*.sql
var FS embed.FS
