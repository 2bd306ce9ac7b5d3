package migrations

import "embed"

// FS содержит SQL-миграции схемы заказов.
//
//go:embed *.sql
var FS embed.FS
