// main.go
//
// Process entrypoint: loads config, opens the database, wires the word
// cache, room registry and facade together, and starts the HTTP server.

package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lontra-games/contexto-server/internal/core"
	"github.com/lontra-games/contexto-server/internal/httpserver"
	"github.com/lontra-games/contexto-server/internal/oracle"
	"github.com/lontra-games/contexto-server/internal/player"
	"github.com/lontra-games/contexto-server/internal/room"
	"github.com/lontra-games/contexto-server/internal/snowflake"
	"github.com/lontra-games/contexto-server/internal/wordcache"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := openDB(getEnv("DB_PATH", "./data/app.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	// Scoring pipeline: in-process cache over the SQLite store, backed by
	// the semantic-distance oracle for misses.
	cache := wordcache.NewCache(wordcache.NewSQLStore(db))
	resolver := wordcache.NewResolver(cache, oracle.NewClient(getEnv("ORACLE_URL", "https://api.contexto.me/machado/en")))

	registry := room.NewRegistry(snowflake.New(), resolver)
	facade := core.New(registry, player.NewStore(db), cache)

	srv := httpserver.New(facade, db)
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Msg("starting contexto-server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
