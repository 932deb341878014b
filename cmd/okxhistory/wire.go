//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/johnayoung/go-okx-history/internal/app"
)

// InitializeApp builds App from the command line options via Wire.
// Caller must call the returned cleanup when done.
func InitializeApp(opts app.Options) (*App, func(), error) {
	wire.Build(
		app.ProviderSet,
		wire.Struct(new(App), "Config", "Logger", "Collector", "Writer", "Metrics"),
	)
	return nil, nil, nil
}
