package main

import (
	"github.com/rundownhq/collab-core/internal/telemetry"
)

// config is the top-level configuration object for rundown-core, grounded
// on go/flow-ingester/main.go's Config struct (nested flag groups, serve
// command).
type config struct {
	Log telemetry.LogConfig `group:"log" namespace:"log" env-namespace:"LOG"`

	Server struct {
		Port int `long:"port" env:"PORT" default:"8080" description:"HTTP port serving /metrics and the realtime websocket endpoint"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	Store struct {
		SqlitePath string `long:"sqlite-path" env:"SQLITE_PATH" default:"rundown-core.db" description:"Path to the sqlite reference store database file"`
	} `group:"store" namespace:"store" env-namespace:"STORE"`

	Etcd struct {
		Endpoint string `long:"endpoint" env:"ENDPOINT" default:"localhost:2379" description:"Etcd endpoint backing the legacy whole-document CAS path"`
	} `group:"etcd" namespace:"etcd" env-namespace:"ETCD"`

	Realtime struct {
		WebsocketURL string `long:"websocket-url" env:"WEBSOCKET_URL" description:"Upstream realtime transport endpoint reconnected by C5"`
	} `group:"realtime" namespace:"realtime" env-namespace:"REALTIME"`
}
