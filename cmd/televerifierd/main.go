// Command televerifierd runs the transaction event log verifier as an
// HTTPS daemon, the daemon-shaped counterpart of the teacher's
// Server.ListenAndServeTLS in server.go, generalized from a single
// hash-chained log's register/open/close/verify lifecycle to a
// multi-registry TEL event/query/escrow-drain surface.
package main

import (
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/karasz/televerifier/config"
	"github.com/karasz/televerifier/db"
	"github.com/karasz/televerifier/help"
	"github.com/karasz/televerifier/vdr"
)

func main() {
	configPath := flag.String("config", "", "path to a televerifierd config file (yaml/json/toml)")
	flag.Parse()

	log, err := help.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	reger, err := db.OpenSQLiteReger(cfg.RegerDSN)
	if err != nil {
		log.Fatal("open reger", zap.Error(err))
	}
	defer func() { _ = reger.Close() }()

	baser, err := db.OpenSQLiteBaser(cfg.BaserDSN)
	if err != nil {
		log.Fatal("open baser", zap.Error(err))
	}
	defer func() { _ = baser.Close() }()

	tevery := vdr.NewTevery(reger, baser, cfg.LocalRegk, cfg.Local, log)

	if cfg.EscrowIntervalSeconds > 0 {
		go runEscrowLoop(tevery, time.Duration(cfg.EscrowIntervalSeconds)*time.Second, log)
	}

	srv := newServer(tevery, log)

	log.Info("televerifierd listening", zap.String("addr", cfg.ListenAddr))
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		if err := srv.listenAndServeTLS(cfg.ListenAddr, cfg.TLSCert, cfg.TLSKey); err != nil {
			log.Fatal("serve", zap.Error(err))
		}
		return
	}
	log.Warn("no TLS cert/key configured, refusing to start plaintext")
}

func runEscrowLoop(tevery *vdr.Tevery, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		tevery.ProcessEscrows()
		if cues := tevery.Cues(); len(cues) > 0 {
			log.Info("escrow drain produced cues", zap.Int("count", len(cues)))
		}
	}
}
