package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/ledger"
	"github.com/confledger/confledger/service"
	"github.com/confledger/confledger/storage"
)

// config holds the daemon configuration, read from CONFLEDGER_* environment
// variables and overridable with flags.
type config struct {
	Host     string `default:"0.0.0.0"`
	Port     int    `default:"8080"`
	DataDir  string `envconfig:"DATA_DIR" default:"confledger-data"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	PrivKey  string `envconfig:"PRIV_KEY"`
}

func main() {
	var cfg config
	if err := envconfig.Process("confledger", &cfg); err != nil {
		log.Fatalf("could not process env config: %v", err)
	}
	flag.StringVar(&cfg.Host, "host", cfg.Host, "API bind address")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "API port")
	flag.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.PrivKey, "privkey", cfg.PrivKey, "hex private key identifying the ledger (generated if empty)")
	flag.Parse()

	log.Init(cfg.LogLevel, "stdout", nil)

	database, err := metadb.New(db.TypePebble, cfg.DataDir)
	if err != nil {
		log.Fatalf("could not open database: %v", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	signer := ethereum.NewSignKeys()
	if cfg.PrivKey != "" {
		if err := signer.AddHexKey(cfg.PrivKey); err != nil {
			log.Fatalf("could not load private key: %v", err)
		}
	} else {
		if err := signer.Generate(); err != nil {
			log.Fatalf("could not generate signing key: %v", err)
		}
	}

	ldgr, err := ledger.New(stg, signer)
	if err != nil {
		log.Fatalf("could not open ledger: %v", err)
	}
	log.Infow("ledger opened", "address", ldgr.Address().Hex())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	apiService := service.NewAPI(ldgr, cfg.Host, cfg.Port)
	if err := apiService.Start(ctx); err != nil {
		log.Fatalf("could not start API service: %v", err)
	}
	defer apiService.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Infow("shutting down")
}
