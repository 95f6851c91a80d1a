package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/barscan/pkg/framework"
	"github.com/robotalks/barscan/pkg/env"
	"github.com/robotalks/barscan/pkg/publish/mqtt"
	"github.com/robotalks/barscan/pkg/publish/websocket"
	"github.com/robotalks/barscan/pkg/scanner"
	"github.com/robotalks/barscan/pkg/service"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewConfig()
	mode, err := conf.ScanMode()
	if err != nil {
		glog.Exit(err)
	}
	format, err := conf.PayloadFormat()
	if err != nil {
		glog.Exit(err)
	}
	opts, err := conf.Options()
	if err != nil {
		glog.Exit(err)
	}
	current, err := conf.OpenChannel()
	if err != nil {
		glog.Exitf("open %s: %v", conf.Serial.Name, err)
	}
	s := scanner.New(current, opts...)

	loop := fx.NewLoop()
	svc := service.New(s, conf.ID(), loop)
	svc.Port = conf.Serial.Name
	svc.Mode = mode
	svc.Timeout = conf.Timeout
	svc.Reopen = func() (scanner.Channel, error) {
		if closer, ok := current.(interface{ Close() error }); ok {
			closer.Close()
			current = nil
		}
		ch, err := conf.OpenChannel()
		if err != nil {
			return nil, err
		}
		current = ch
		return ch, nil
	}

	runner := fx.NewRunner().HandleSignals()

	var pub *mqtt.Publisher
	if conf.MQTTURL != "" {
		mqttOpts, prefix, err := mqtt.ClientOptionsFromURL(conf.MQTTURL)
		if err != nil {
			glog.Exit(err)
		}
		pub = mqtt.NewPublisher(nil, svc.ScannerID)
		pub.Format = format
		if err := pub.SetWill(mqttOpts, prefix); err != nil {
			glog.Exit(err)
		}
		q := mqtt.NewQueue(mqttOpts, prefix)
		pub.Transport = q
		if err := q.Connect(10 * time.Second); err != nil {
			glog.Exitf("connect %s: %v", conf.MQTTURL, err)
		}
		defer q.Close()
		handler := pub.CommandHandler(svc.Execute)
		if _, err := q.Subscribe(pub.CommandFilter(), func(topic string, payload []byte) {
			go handler(topic, payload)
		}); err != nil {
			glog.Exitf("subscribe %s: %v", pub.CommandFilter(), err)
		}
		loop.Add(pub)
	}

	if conf.WebSocketAddr != "" {
		hub := websocket.NewHub()
		loop.Add(hub)
		mux := http.NewServeMux()
		mux.Handle("/scans", hub.Handler())
		ln, err := net.Listen("tcp", conf.WebSocketAddr)
		if err != nil {
			glog.Exit(err)
		}
		server := &http.Server{Handler: mux}
		runner.Go(fx.NamedRun("websocket", fx.RunFunc(func(ctx context.Context) error {
			defer hub.Close()
			err := fx.RunWithContextCloser(ctx, server, func() error {
				return server.Serve(ln)
			})
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})))
		glog.Infof("websocket listening on %s/scans", ln.Addr())
	}

	runner.Go(fx.NamedRun("loop", fx.RunFunc(loop.Run)), svc)
	err = runner.Wait()
	if pub != nil {
		if err := pub.PublishStatus(svc.Status(false)); err != nil {
			glog.Warningf("publish offline status: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		glog.Warningf("close scanner: %v", err)
	}
	if err != nil {
		glog.Exit(err)
	}
}
