package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/helper"
	"docqa/internal/session"
	"docqa/internal/synth"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	filePath := flag.String("file", "", "Path to the document file")
	query := flag.String("query", "", "Question to ask about the document")
	flag.Parse()

	if *filePath == "" {
		log.Fatal().Msg("Please provide a document using the -file flag, optionally with a question using the -query flag")
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on the environment")
	}

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ingestAndAsk(context.Background(), cfg, *filePath, *query)
}

func ingestAndAsk(ctx context.Context, cfg *config.Config, filePath, query string) {
	gateway, err := embedding.New(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating embedding gateway")
	}
	generator, err := synth.NewLLM(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating answer generator")
	}

	pages, err := extract.File(filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", filePath).Msg("Error extracting document text")
	}

	sess := session.New(gateway, generator, cfg)
	upload, err := sess.Upload(ctx, session.UploadInput{Filename: filePath, Pages: pages})
	if err != nil {
		log.Fatal().Err(err).Msg("Error indexing document")
	}
	log.Info().Int("pages", upload.Pages).Int("chunks", upload.Chunks).Msg("document indexed")

	if query == "" {
		helper.PrettyPrint(upload)
		return
	}

	answer, err := sess.Ask(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}
	helper.PrettyPrint(answer)
}
