package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	biometriccmd "github.com/shiftline/biometric/internal/cmd/biometric"
)

func main() {
	cfg, err := biometriccmd.ParseConfig(flag.CommandLine, os.Args[1:], func(key string) (string, bool) {
		value, ok := os.LookupEnv(key)
		return value, ok
	})
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[BIOMETRIC] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := biometriccmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
