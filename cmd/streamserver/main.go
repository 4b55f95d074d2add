// Command streamserver runs one world: it accepts clients over TCP, KCP and WebSocket,
// streams the world around every player and replicates state to them.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/xiaonanln/gostream/engine/binutil"
	"github.com/xiaonanln/gostream/engine/config"
	"github.com/xiaonanln/gostream/engine/consts"
	"github.com/xiaonanln/gostream/engine/gate"
	"github.com/xiaonanln/gostream/engine/gwlog"
	"github.com/xiaonanln/gostream/engine/opmon"
	"github.com/xiaonanln/gostream/engine/world"
)

var args struct {
	configFile      string
	logLevel        string
	pidFile         string
	runInDaemonMode bool
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.pidFile, "pidfile", "", "set pid file path in daemon mode")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

func main() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize(args.pidFile)
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	if cfg.Server.GoMaxProcs > 0 {
		gwlog.Infof("SET GOMAXPROCS = %d", cfg.Server.GoMaxProcs)
		runtime.GOMAXPROCS(cfg.Server.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.Server.LogLevel
	}
	binutil.SetupGWLog(binutil.ComponentName("streamserver", os.Getpid()), logLevel, cfg.Server.LogFile, cfg.Server.LogStderr)
	gwlog.Infof("config: %s", config.DumpPretty(cfg))
	binutil.SetupHTTPServer(cfg.Server.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)

	server := world.NewServer(cfg, nil)
	gs := server.NewGate(gate.Options{
		ListenAddr:    cfg.Server.ListenAddr,
		KCPAddr:       cfg.Server.KCPAddr,
		WebSocketAddr: cfg.Server.WebSocketAddr,
		RecvWorkers:   cfg.Streaming.SyncReceiveThreadCount,
		SendWorkers:   cfg.Streaming.SyncSendThreadCount,
	})
	if err := gs.Start(); err != nil {
		gwlog.Fatalf("start gate failed: %v", err)
	}

	binutil.StartProcessMonitor(ctx, consts.PROCESS_MONITOR_INTERVAL)
	opmon.StartDumping(os.Stderr, consts.OPMON_DUMP_INTERVAL, ctx.Done())

	if err := server.Run(ctx); err != nil {
		gwlog.Errorf("%s stopped: %v", server, err)
	}
	gs.Terminate()
	gwlog.Infof("streamserver terminated gracefully.")
}

func setupSignals(cancel context.CancelFunc) {
	gwlog.Infof("Setup signals ...")
	signalChan := make(chan os.Signal, 1)
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		gwlog.Infof("received %s, terminating ...", sig)
		cancel()
	}()
}
