package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	paymentscmd "github.com/louisbranch/paysaga/internal/cmd/payments"
)

func main() {
	cfg, err := paymentscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[PAYMENTS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := paymentscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("payments: %v", err)
	}
}
