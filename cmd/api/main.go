package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/assemblyai"
	"github.com/airenas/whispers/internal/pkg/auth"
	"github.com/airenas/whispers/internal/pkg/gemini"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/postgres"
	"github.com/airenas/whispers/internal/pkg/storage"
	"github.com/airenas/whispers/internal/pkg/transcription"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/airenas/whispers/internal/pkg/whisper"
	"github.com/airenas/whispers/internal/pkg/whisperservice"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/color"
)

func main() {
	if err := godotenv.Load(); err == nil {
		goapp.Log.Info().Msg("loaded .env")
	}
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	utils.SetDefaults(cfg)

	data := &whisperservice.Data{}
	data.Port = cfg.GetInt("port")
	data.TranscribeRate = cfg.GetFloat64("rate.perSecond")

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	addDBLog(dbConfig)

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	data.Filer, err = storage.NewFiler(ctx, storage.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		HTTPS: cfg.GetBool("filer.https"), PublicURL: cfg.GetString("filer.publicURL")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	gate, err := limit.NewGate(db, cfg.GetInt("limit.minutes"), cfg.GetInt("limit.transformations"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init limit gate")
	}
	data.Limiter = gate

	tr, err := assemblyai.NewClient(cfg.GetString("assemblyai.url"), cfg.GetString("assemblyai.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}
	gen, err := gemini.NewClient(cfg.GetString("gemini.url"), cfg.GetString("gemini.key"), cfg.GetString("gemini.model"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init generator")
	}

	data.Transcriber, err = transcription.NewWorkflow(&transcription.Data{Gate: gate, Transcriber: tr, Titler: gen,
		DB: db, PollInterval: cfg.GetDuration("transcription.pollInterval"),
		PollAttempts: cfg.GetInt("transcription.pollAttempts")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcription workflow")
	}

	data.Whispers, err = whisper.NewService(db, gate, sender)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init whisper service")
	}

	authenticator, err := auth.NewAuthenticator(cfg.GetString("auth.secret"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init auth")
	}
	data.Auth = authenticator.Middleware()

	go utils.RunPerfEndpoint()

	err = whisperservice.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

func addDBLog(dbConfig *pgxpool.Config) {
	logFunc := func(msg string) { goapp.Log.Debug().Msg(msg) }
	dbConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		logFunc("before connect")
		return nil
	}
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logFunc("after connect")
		return nil
	}
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
	
%s
________________________________________________________                                                 

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/whispers"))
}
