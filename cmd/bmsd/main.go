package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"

	"github.com/robotalks/bms.go/pkg/can"
	"github.com/robotalks/bms.go/pkg/config"
	fx "github.com/robotalks/bms.go/pkg/framework"
	"github.com/robotalks/bms.go/pkg/monitor"
	"github.com/robotalks/bms.go/pkg/mqtt"
	"github.com/robotalks/bms.go/pkg/node"
	"github.com/robotalks/bms.go/pkg/pl455"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()

	conf := config.Default()
	if err := conf.Load(); err != nil {
		log.Fatalln(err)
	}

	port, err := pl455.OpenSerial(conf.Serial.Device, conf.Serial.Baud, conf.Serial.ReadTimeout)
	if err != nil {
		log.Fatalf("open %s: %v", conf.Serial.Device, err)
	}
	link := pl455.NewLink(port, pl455.Codec{Width: conf.AddrWidth()})

	opts := conf.NodeOptions()
	opts.Chip = node.NewChainChip(link, conf.Serial.MaxDevices, conf.Scheduler)
	// closing the port unblocks a pending read
	opts.Runnables = append(opts.Runnables, fx.NamedRun(link.Name(), fx.RunFunc(func(ctx context.Context) error {
		return fx.RunWithContextCloser(ctx, port, func() error { return link.Run(ctx) })
	})))

	if conf.CAN.Interface != "" {
		bus, err := can.OpenSocket(conf.CAN.Interface)
		if err != nil {
			log.Fatalf("open %s: %v", conf.CAN.Interface, err)
		}
		defer bus.Close()
		opts.Bus = bus
		opts.Runnables = append(opts.Runnables, bus)
	}

	if conf.MQTT.URL != "" {
		pub, queue, err := mqtt.NewPublisher(conf.MQTT.URL, conf.Node.Name)
		if err != nil {
			log.Fatalln(err)
		}
		opts.Observers = append(opts.Observers, pub)
		opts.Runnables = append(opts.Runnables, &mqtt.Runner{Queue: queue, Online: mqtt.OnlineTopic(conf.Node.Name)})
	}

	if conf.HTTP.Addr != "" {
		mon := monitor.New(conf.HTTP.Addr, conf.Node.Name)
		opts.Observers = append(opts.Observers, mon)
		opts.Runnables = append(opts.Runnables, mon)
	}

	loop := fx.NewLoop()
	n, err := node.New(opts, loop.Clock.Now())
	if err != nil {
		log.Fatalln(err)
	}
	loop.Add(n)

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("loop", loop))
	if err := runner.Wait(); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}
