package main

import (
	"flag"
	"log"
	"os"
	"path"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/publish/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/"
	format  = msgs.FormatProto.String()
)

func init() {
	if val := os.Getenv("BARSCAN_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&format, "format", format, "Payload format: proto, json.")
}

func decoderOf(leaf string) proto.Message {
	switch leaf {
	case mqtt.TopicScan:
		return &msgs.ScanEvent{}
	case mqtt.TopicStatus:
		return &msgs.Status{}
	case mqtt.TopicCmd:
		return &msgs.CommandRequest{}
	case mqtt.TopicResult:
		return &msgs.CommandResult{}
	}
	return nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	f, err := msgs.ParseFormat(format)
	if err != nil {
		log.Fatalln(err)
	}
	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(10 * time.Second); err != nil {
		log.Fatalln(err)
	}

	_, err = q.Subscribe("scanners/#", func(topic string, payload []byte) {
		msg := decoderOf(path.Base(topic))
		if msg == nil {
			log.Printf("%s: %d bytes", topic, len(payload))
			return
		}
		if err := f.Unmarshal(payload, msg); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, msg.String())
	})
	if err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
