// config-gen writes a starter recorderd configuration with a fresh client
// CURVE key pair, and a matching tracing server configuration on a
// pseudo-randomly selected local port.
//
// Existing files under the output directory are read first, so connection
// settings already present are kept and only keys and addresses change.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/DistributedClocks/tracing"

	"example.org/recorderd"
	"example.org/recorderd/transport"
)

func genPort() int32 {
	return rand.Int31n(35535-1024) + 1024
}

// updateConfig decodes fileName if it exists, applies updateFn and writes
// the result back with tab indentation.
func updateConfig(dir string, fileName string, emptyConfig interface{}, updateFn func()) {
	path := filepath.Join(dir, fileName)
	fileRead, err := os.Open(path)
	switch {
	case err == nil:
		decoder := json.NewDecoder(fileRead)
		err = decoder.Decode(emptyConfig)
		fileRead.Close()
		if err != nil {
			log.Fatal(err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Fatal(err)
	}
	updateFn()
	fileWrite, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer fileWrite.Close()
	encoder := json.NewEncoder(fileWrite)
	encoder.SetIndent("", "\t")
	if err := encoder.Encode(emptyConfig); err != nil {
		log.Fatal(err)
	}
}

func main() {
	dir := flag.String("dir", "config", "output directory")
	host := flag.String("host", "127.0.0.1", "job publisher host")
	serverKey := flag.String("server-key", "", "publisher CURVE public key (hex)")
	workers := flag.Int("workers", recorderd.DefaultWorkers, "workers for the first connection")
	tracingOn := flag.Bool("tracing", false, "also write a tracing server configuration")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatal(err)
	}

	keys, err := transport.GenerateKeyPair()
	if err != nil {
		log.Fatal(err)
	}

	traceServerAddr := ""
	if *tracingOn {
		traceServerAddr = fmt.Sprintf("127.0.0.1:%v", genPort())
		traceServerConfig := &tracing.TracingServerConfig{}
		updateConfig(*dir, "tracing_server_config.json", traceServerConfig, func() {
			traceServerConfig.ServerBind = traceServerAddr
		})
	}

	minerConfig := &recorderd.MinerConfig{}
	updateConfig(*dir, "recorder.json", minerConfig, func() {
		minerConfig.ClientPublicKey = keys.PublicHex()
		minerConfig.ClientSecretKey = keys.SecretHex()
		if len(minerConfig.Connections) == 0 {
			minerConfig.Connections = []recorderd.ConnectionConfig{{
				Number:        1,
				Enable:        true,
				Workers:       *workers,
				UseIPv4:       true,
				Host:          *host,
				SubscribePort: recorderd.DefaultSubscribePort,
				RequestPort:   recorderd.DefaultRequestPort,
				Queue:         recorderd.DefaultQueue,
			}}
		}
		if *serverKey != "" {
			minerConfig.Connections[0].PublicKey = *serverKey
		}
		if minerConfig.Logging.Level == "" {
			minerConfig.Logging = recorderd.LoggingConfig{
				Directory: recorderd.DefaultLogDirectory,
				File:      recorderd.DefaultLogFile,
				Size:      recorderd.DefaultLogSize,
				Count:     recorderd.DefaultLogCount,
				Level:     "info",
			}
		}
		if traceServerAddr != "" {
			minerConfig.Tracing.ServerAddress = traceServerAddr
			if minerConfig.Tracing.Identity == "" {
				minerConfig.Tracing.Identity = "recorderd"
			}
		}
	})
	fmt.Printf("client public key: %s\n", keys.PublicHex())
}
