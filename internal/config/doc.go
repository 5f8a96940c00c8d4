// Package config loads frel.json, the configuration shared by the runtime,
// the websocket server and the CLI.
//
// # Configuration File Structure
//
//	{
//	  "name": "counter",
//	  "runtime": {
//	    "maxIdentities": 1000000,
//	    "maxFragments": 100000,
//	    "maxRounds": 64,
//	    "pendingLimit": 1024
//	  },
//	  "server": {
//	    "addr": "localhost:8080",
//	    "path": "/ws",
//	    "eventsPerSecond": 50,
//	    "burst": 20,
//	    "writeTimeout": "10s",
//	    "tracing": true
//	  },
//	  "metrics": {
//	    "path": "/metrics",
//	    "namespace": "frel"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// Every field is optional; missing fields take the defaults from New.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.Log.Logger(os.Stderr)
package config
