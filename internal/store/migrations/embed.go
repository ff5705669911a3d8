// Package migrations embeds the durable log's schema so golang-migrate can
// apply it without shelling out to a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
