package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/always-cache/precache"
	"github.com/always-cache/precache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string
	logMaxSizeFlag     int
	logMaxBackupsFlag  int

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Base URL of the app to proxy to, resources are resolved against it")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flag.IntVar(&logMaxSizeFlag, "log-max-size", 100, "Size in megabytes after which the log file is rotated")
	flag.IntVar(&logMaxBackupsFlag, "log-max-backups", 10, "Number of rotated log files to keep")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to a rotated logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    logMaxSizeFlag,
			MaxBackups: logMaxBackupsFlag,
			LocalTime:  true,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	manifest, err := parseManifest(manifestBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid manifest")
	}

	if originFlag == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse url")
	}

	// set up sqlite memory provider
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = "file::memory:?cache=shared"
	}
	storage, err := cache.NewSQLiteStorage(dbFilename)
	if err != nil {
		log.Fatal().Err(err).Str("db", dbFilename).Msg("Could not open cache db")
	}

	p, err := precache.New(precache.Config{
		Storage:   storage,
		CacheName: manifest.CacheName,
		Resources: manifest.Resources,
		BaseURL:   *originURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not set up cache")
	}

	// install before serving, a failed install is fatal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = p.Init(ctx)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not precache resources")
	}

	log.Info().Msgf("Proxying port %v to %s", portFlag, originURL.String())
	err = http.ListenAndServe(fmt.Sprintf(":%d", portFlag), newRouter(p, log.Logger))

	if err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
