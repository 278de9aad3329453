// Relay server for collaborative voxel sync sessions.  Participants join a
// session over websocket and the relay fans their delta and snapshot frames
// out to everyone else in the session.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/janelia-flyem/voxelsync/relay"
	"github.com/janelia-flyem/voxelsync/voxelsync"
)

var (
	showHelp = flag.Bool("help", false, "")

	runVerbose = flag.Bool("verbose", false, "")

	// Address for http/websocket communication; overrides the config file.
	httpAddress = flag.String("http", "", "")
)

const helpMessage = `
voxsync-relay fans voxel sync frames out to the participants of a session

Usage: voxsync-relay [options] [config.toml]

      -http       =string   Address for HTTP/websocket communication.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

The optional TOML config file sets the listen address, CORS origins, log
rotation, kafka activity logging, and the redis bridge used to span one
session across multiple relay instances.
`

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		voxelsync.SetLogMode(voxelsync.DebugMode)
	} else {
		voxelsync.SetLogMode(voxelsync.InfoMode)
	}

	configPath := ""
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}
	config, err := relay.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}

	config.Logging.SetLogger()
	defer voxelsync.Shutdown()

	if len(config.Kafka.Servers) > 0 {
		host, _ := os.Hostname()
		if err := config.Kafka.Initialize(host); err != nil {
			voxelsync.Errorf("unable to initialize kafka: %v\n", err)
			os.Exit(1)
		}
		defer voxelsync.KafkaShutdown()
	}

	var bridge relay.Bridge
	if config.Redis.Address != "" {
		rb, err := relay.NewRedisBridge(context.Background(), config.Redis)
		if err != nil {
			voxelsync.Errorf("unable to connect redis bridge: %v\n", err)
			os.Exit(1)
		}
		defer rb.Close()
		bridge = rb
	}

	registry := relay.NewRegistry(bridge)
	server := relay.NewServer(registry, config)

	// Graceful shutdown notifies every live session before exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		voxelsync.Infof("got signal %s, ending all sessions\n", sig)
		registry.Shutdown()
		voxelsync.Shutdown()
		os.Exit(0)
	}()

	if err := server.ListenAndServe(); err != nil {
		voxelsync.Criticalf("relay server failed: %v\n", err)
		os.Exit(1)
	}
}
