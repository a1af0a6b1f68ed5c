package main

import (
	"context"
	goflag "flag"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/monitoring"
	"github.com/classkit/collab/pkg/os"
	"github.com/classkit/collab/pkg/relay"
	"github.com/classkit/collab/pkg/server"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewRelaydConfig("")
	if err != nil {
		panic(err)
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Relay.Debug, "r", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	r, err := relay.New(conf.Relay, log)
	if err != nil {
		log.Fatal().Err(err).Msg("relay init")
	}
	services := server.NewServices(log, r)
	if conf.Monitoring.IsEnabled() {
		m, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			log.Fatal().Err(err).Msg("monitoring init")
		}
		services.Add(m)
	}
	services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		services.Shutdown(ctx)
		cancel()
	}()
	<-os.ExpectTermination()
}
