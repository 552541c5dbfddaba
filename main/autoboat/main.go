package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jd3nn1s/autoboat"
	"github.com/jd3nn1s/autoboat/config"
	"github.com/jd3nn1s/autoboat/forwarder"
	log "github.com/sirupsen/logrus"
)

var configFile = flag.String("config", "autoboat.toml", "vehicle configuration file")
var udpConfig = flag.String("udp-config", "", "udp forwarder configuration file, disabled when empty")
var mqttConfig = flag.String("mqtt-config", "", "mqtt forwarder configuration file, disabled when empty")
var testMode = flag.Bool("testmode", false, "generate test data")
var printTelemetry = flag.Bool("print-telemetry", false, "print telemetry to stdout")

type printForwarder struct{}

func (printForwarder) Forward(newTelemetry *autoboat.Telemetry, _ *autoboat.Telemetry) error {
	fmt.Printf("%+v\n", *newTelemetry)
	return nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal("invalid log level: ", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boat, err := autoboat.NewBoat(cfg)
	if err != nil {
		log.Fatal("unable to create boat: ", err)
	}

	if *udpConfig != "" {
		fwder, err := forwarder.NewUDPForwarder(*udpConfig)
		if err != nil {
			log.Fatal("unable to load UDP forwarder: ", err)
		}
		defer fwder.Close()
		go fwder.Start(ctx)
		boat.AddForwarder(fwder)
	}
	if *mqttConfig != "" {
		fwder, err := forwarder.NewMQTTForwarder(*mqttConfig, boat)
		if err != nil {
			log.Fatal("unable to load MQTT forwarder: ", err)
		}
		defer fwder.Close()
		go fwder.Start(ctx)
		boat.AddForwarder(fwder)
	}
	if *printTelemetry {
		boat.AddForwarder(printForwarder{})
	}

	boat.SetTestMode(*testMode)
	if !*testMode {
		boat.AddForwarder(boat.MotorForwarder())
	}
	boat.Start(ctx)

	log.WithField("mode", boat.Mode()).Info("control loop running")
	if err := boat.Run(ctx); err != nil && err != context.Canceled {
		log.Error("control loop stopped: ", err)
	}
}
