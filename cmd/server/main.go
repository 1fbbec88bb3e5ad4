package main

import (
	"log"

	"github.com/arre-ops/arre_server/cmd/api"
	"github.com/arre-ops/arre_server/cmd/config"
	"github.com/arre-ops/arre_server/cmd/db"
	"github.com/arre-ops/arre_server/cmd/redisconn"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	// Local development convenience; production sets real env vars.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	cfg := config.Load()

	// Start Datadog APM tracer - automatically starts on every application restart
	tracer.Start(
		tracer.WithService(cfg.DDService),
		tracer.WithEnv(cfg.DDEnv),
		tracer.WithServiceVersion(cfg.DDVersion),
		tracer.WithAgentAddr(cfg.DDAgentHost+":8126"),
	)
	defer tracer.Stop()
	log.Printf("Datadog APM tracer started: service=%s env=%s version=%s agent=%s",
		cfg.DDService, cfg.DDEnv, cfg.DDVersion, cfg.DDAgentHost)

	database, err := db.SqlStorage(cfg)
	if err != nil {
		log.Fatal(err)
	}

	redisClient, err := redisconn.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}

	server := api.NewArreServer(cfg, database, redisClient)
	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
