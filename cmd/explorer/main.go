package main

// Explorer: a small read-only HTTP API over a Meridian state journal. It
// replays the same journal the CLI writes and serves substates, balances,
// the state root and the epoch.

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var logger = logrus.StandardLogger()

func main() {
	// Load environment variables from project .env if present
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	viper.AutomaticEnv()

	statePath := viper.GetString("MERIDIAN_STATE")
	if statePath == "" {
		statePath = "meridian-state.json"
	}
	addr := viper.GetString("EXPLORER_BIND")
	if addr == "" {
		addr = ":8640"
	}

	svc, err := NewStateService(statePath)
	if err != nil {
		logger.Fatalf("state service: %v", err)
	}

	srv := NewServer(addr, svc)
	logger.Infof("explorer listening on %s (state %s, root %s)", addr, statePath, svc.Engine.StateRoot().Hex()[:16])
	if err := srv.Start(); err != nil {
		logger.Fatalf("server: %v", err)
	}
}
