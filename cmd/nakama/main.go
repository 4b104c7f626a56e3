// Command nakama is the Lotería server module, built with
// go build -buildmode=plugin and loaded by the Nakama runtime.
package main

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/ports/nakama"
)

// InitModule is the symbol Nakama looks up in the plugin.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}

// main is unused when built with -buildmode=plugin; it lets go build ./... succeed.
func main() {}
