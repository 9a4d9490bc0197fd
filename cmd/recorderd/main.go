package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"example.org/recorderd"
	"example.org/recorderd/logging"
	"example.org/recorderd/miner"
	"example.org/recorderd/transport"
)

const version = "0.4.0"

// stopTimeout bounds the wait for in-flight submissions at shutdown.
const stopTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "", "configuration file (.lua or .json)")
	verbose := flag.Bool("verbose", false, "also log to the console")
	debug := flag.Bool("debug", false, "print the parsed configuration")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("recorderd v%s\n", version)
		return
	}
	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		flag.Usage()
		os.Exit(2)
	}

	var config recorderd.MinerConfig
	if err := recorderd.ReadConfig(*configFile, &config); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *debug {
		fmt.Printf("configuration file: %s\n", *configFile)
		fmt.Printf("configuration: %+v\n", config)
	}
	if *verbose {
		config.Logging.Console = true
	}

	logger, logFile, err := logging.New(config.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.SetDefault(logger)
	log.Warn("=== start ===", "version", version)

	recorder, closeRecorder := recorderd.NewRecorder(config.Tracing, "recorderd")
	defer closeRecorder()

	keys, err := clientKeys(config)
	if err != nil {
		log.Crit("Client keys", "err", err)
	}
	log.Info("Client public key", "key", keys.PublicHex())

	var connections []*miner.Connection
	errCh := make(chan error, 1)
	for _, cn := range config.Connections {
		if !cn.Active() {
			log.Debug("Connection disabled", "conn", cn.Number)
			continue
		}
		log.Info("Subscribe to", "conn", cn.Number, "address", cn.SubscribeAddress())
		log.Info("Requests to", "conn", cn.Number, "address", cn.RequestAddress())

		sub, req, err := miner.Dial(cn, keys)
		if err != nil {
			log.Crit("Connect failed", "conn", cn.Number, "err", err)
		}
		c, err := miner.NewConnection(miner.Options{
			Config:     cn,
			Subscriber: sub,
			Requester:  req,
			Recorder:   recorder,
			Logger:     logger,
		})
		if err != nil {
			log.Crit("Connection setup failed", "conn", cn.Number, "err", err)
		}
		c.Start()
		connections = append(connections, c)
		go func(c *miner.Connection) {
			if err := <-c.Errors(); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(c)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Warn("Signal received", "signal", sig)
	case err := <-errCh:
		log.Error("Fatal connection error", "err", err)
		exitCode = 1
	}

	stopped := make(chan struct{})
	go func() {
		for _, c := range connections {
			c.Stop()
		}
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		log.Warn("Shutdown timed out")
	}
	log.Warn("=== stop ===")
	if exitCode != 0 {
		logFile.Close()
		os.Exit(exitCode)
	}
}

// clientKeys loads the configured key pair, or generates a fresh one for
// this run.
func clientKeys(config recorderd.MinerConfig) (*transport.KeyPair, error) {
	if config.ClientPublicKey != "" {
		return transport.KeyPairFromHex(config.ClientPublicKey, config.ClientSecretKey)
	}
	return transport.GenerateKeyPair()
}
