package mqtt

import (
	"context"
	"errors"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/barscan/pkg/framework"
	"github.com/robotalks/barscan/pkg/msgs"
)

// ErrTimeout indicates the broker didn't confirm in time.
var ErrTimeout = errors.New("mqtt timeout")

// Topic leaves under scanners/<id>/.
const (
	TopicScan   = "scan"
	TopicStatus = "status"
	TopicCmd    = "cmd"
	TopicResult = "result"
)

// Transport publishes payloads. Queue implements it.
type Transport interface {
	Publish(topic string, qos byte, retain bool, payload []byte) error
}

// Executor runs a remote command.
type Executor func(*msgs.CommandRequest) *msgs.CommandResult

// Publisher publishes scanner messages under scanners/<id>/.
type Publisher struct {
	Transport Transport
	ScannerID string
	Format    msgs.Format
	QoS       byte
}

// NewPublisher creates a Publisher with protobuf payloads.
func NewPublisher(t Transport, scannerID string) *Publisher {
	return &Publisher{Transport: t, ScannerID: scannerID, Format: msgs.FormatProto}
}

// Topic returns the topic of a leaf, without the queue prefix.
func (p *Publisher) Topic(leaf string) string {
	return "scanners/" + p.ScannerID + "/" + leaf
}

func (p *Publisher) publish(leaf string, retain bool, m proto.Message) error {
	payload, err := p.Format.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", leaf, err)
	}
	return p.Transport.Publish(p.Topic(leaf), p.QoS, retain, payload)
}

// PublishScan publishes a scan event.
func (p *Publisher) PublishScan(ev *msgs.ScanEvent) error {
	return p.publish(TopicScan, false, ev)
}

// PublishStatus publishes the retained status.
func (p *Publisher) PublishStatus(st *msgs.Status) error {
	return p.publish(TopicStatus, true, st)
}

// PublishResult publishes the result of a remote command.
func (p *Publisher) PublishResult(res *msgs.CommandResult) error {
	return p.publish(TopicResult, false, res)
}

// SetWill makes the broker publish an offline status when the connection
// drops. topicPrefix is the prefix of the Queue.
func (p *Publisher) SetWill(opts *paho.ClientOptions, topicPrefix string) error {
	payload, err := p.Format.Marshal(&msgs.Status{ScannerID: p.ScannerID})
	if err != nil {
		return err
	}
	opts.SetBinaryWill(topicPrefix+p.Topic(TopicStatus), payload, 1, true)
	return nil
}

// HandleMessage implements framework.MessageHandler.
func (p *Publisher) HandleMessage(ctx context.Context, msg fx.Message) {
	var err error
	switch m := msg.(type) {
	case *msgs.ScanEvent:
		err = p.PublishScan(m)
	case *msgs.Status:
		err = p.PublishStatus(m)
	case *msgs.CommandResult:
		err = p.PublishResult(m)
	default:
		return
	}
	if err != nil {
		glog.Errorf("publish %T: %v", msg, err)
	}
}

// CommandFilter is the topic remote commands are received on.
func (p *Publisher) CommandFilter() string {
	return p.Topic(TopicCmd)
}

// CommandHandler decodes requests, runs them with exec and publishes the
// results.
func (p *Publisher) CommandHandler(exec Executor) Handler {
	return func(topic string, payload []byte) {
		var req msgs.CommandRequest
		if err := p.Format.Unmarshal(payload, &req); err != nil {
			glog.Warningf("%s: bad command request: %v", topic, err)
			return
		}
		glog.V(2).Infof("%s: %s", topic, req.String())
		if err := p.PublishResult(exec(&req)); err != nil {
			glog.Errorf("publish result of %s: %v", req.Command, err)
		}
	}
}
