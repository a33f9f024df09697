package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/bsrt/bsrt/engine"
)

func main() {
	runtime.LockOSThread()

	os.Exit(run())
}

func run() int {
	cfg, err := engine.LoadConfig(engine.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return 1
	}

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return 1
	}
	defer engine.CloseLogging()
	defer e.Close()

	log := e.Log()
	err = e.DispatchTest(context.Background())
	if err != nil {
		log.Error("test dispatch failed", "err", fmt.Sprintf("%+v", err))
	}

	stop := engine.WatchSignals(e.Window(), func(err error) {
		log.Warn("could not post close request", "err", err)
	})
	defer stop()

	e.Run()
	log.Info("exiting")
	return 0
}
