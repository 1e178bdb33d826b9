package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/gemini"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/postgres"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/airenas/whispers/internal/pkg/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	if err := godotenv.Load(); err == nil {
		goapp.Log.Info().Msg("loaded .env")
	}
	goapp.StartWithDefault()
	cfg := goapp.Config
	utils.SetDefaults(cfg)

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 2)
	data.Testing = cfg.GetBool("worker.testing")
	data.JobTimeout = defaultV(cfg.GetDuration("worker.timeout"), 5*time.Minute)
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db
	data.Restorer, err = limit.NewGate(db, cfg.GetInt("limit.minutes"), cfg.GetInt("limit.transformations"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init limit gate")
	}

	data.Generator, err = gemini.NewClient(cfg.GetString("gemini.url"), cfg.GetString("gemini.key"),
		cfg.GetString("gemini.model"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init generator")
	}

	printBanner()

	go utils.RunPerfEndpoint()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
           __    _                              
 _      __/ /_  (_)________  ___  __________    
| | /| / / __ \/ / ___/ __ \/ _ \/ ___/ ___/    
| |/ |/ / / / / (__  ) /_/ /  __/ /  (__  )     
|__/|__/_/ /_/_/____/ .___/\___/_/  /____/ v: %s
                   /_/                          
                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     
							  
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/whispers"))
}
