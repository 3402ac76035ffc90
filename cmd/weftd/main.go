// Package main is a demo embedding binary for weft: it registers a
// small set of example routes and serves them with the engine.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weftsrv/weft"
	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/cmn/nlog"
	"github.com/weftsrv/weft/schema"
)

var (
	build      string
	buildtime  string
	configPath string
)

func init() {
	flag.StringVar(&configPath, "config", "", "weftd configuration file")
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush(nlog.ActNone)
	}
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	flag.Parse()
	if configPath == "" {
		cos.ExitLogf("missing configuration file (use -config)")
	}

	cfg, err := weft.LoadConfig(configPath)
	if err != nil {
		cos.ExitLogf("failed to load configuration from %q: %v", configPath, err)
	}
	if cfg.LogDir != "" {
		nlog.SetPre(cfg.LogDir, "weftd")
	}
	nlog.Infof("weftd version %s (build %s)", build, buildtime)
	go logFlush()

	eng, err := weft.NewEngineFromConfig(cfg)
	if err != nil {
		cos.ExitLogf("failed to init engine: %v", err)
	}
	registerRoutes(eng)
	eng.Use(metricsModule(eng))

	installSignalHandler(eng)

	err = eng.Listen(cfg.ListenAddr, cfg.ListenPort, cfg.Backlog)
	nlog.Flush(nlog.ActExit)
	eng.Free()
	if err != nil {
		cos.ExitLogf("server failed: %v", err)
	}
}

// registerRoutes wires up the end-to-end scenarios named in spec.md
// section 8: a simple typed-argument GET and a body-echoing upload.
func registerRoutes(eng *weft.Engine) {
	helloSchema := []schema.Desc{
		{Index: 0, Name: "name", Kind: schema.KindString, Default: "world"},
	}
	if err := eng.AddRoute("/hello", helloSchema, helloHandler, nil); err != nil {
		cos.ExitLogf("failed to register /hello: %v", err)
	}
	if err := eng.AddRoute("/upload", nil, uploadHandler, nil); err != nil {
		cos.ExitLogf("failed to register /upload: %v", err)
	}
}

func helloHandler(r *weft.Request) int {
	name := r.String(0)
	r.WriteFormat("Hello, %s!", name)
	return 200
}

func uploadHandler(r *weft.Request) int {
	buf := make([]byte, 16)
	n, err := r.ReadBody(buf)
	if n < 0 || err != nil {
		return 0
	}
	r.WriteString(string(buf[:n]))
	return 200
}

func metricsModule(eng *weft.Engine) *weft.Module {
	var srv *http.Server
	return &weft.Module{
		Name: "metrics",
		OnLoopInit: func(loopID int) error {
			if loopID != 0 {
				return nil
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(eng.Registry(), promhttp.HandlerOpts{}))
			srv = &http.Server{Addr: ":9090", Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					nlog.Warningf("metrics server: %v", err)
				}
			}()
			return nil
		},
		OnEngineTeardown: func() {
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}
		},
	}
}

func installSignalHandler(eng *weft.Engine) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		eng.Shutdown(ctx)
	}()
}

func printVer() {
	fmt.Printf("version %s (build %s)\n", build, buildtime)
}
