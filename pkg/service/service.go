// Package service runs a scanner as a long lived scan source.
package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/barscan/pkg/framework"
	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/scanner"
)

// Defaults of Service.
const (
	DefaultPollTimeout = time.Second
	DefaultRetryMin    = 500 * time.Millisecond
	DefaultRetryMax    = 10 * time.Second
)

// Poster accepts messages. framework.Loop implements it.
type Poster interface {
	Post(fx.Message) bool
}

// Service reads barcodes and posts a msgs.ScanEvent for each.
// Scanner status changes are posted as msgs.Status.
type Service struct {
	Scanner   *scanner.Scanner
	ScannerID string
	Port      string
	Mode      scanner.Mode
	// Timeout bounds each command.
	Timeout time.Duration
	// PollTimeout bounds each ReadBarcode, so cancellation is noticed.
	PollTimeout time.Duration
	// Reopen opens the channel again after a channel failure, closing the
	// failed one first.
	// The Service stops on channel failures when nil.
	Reopen   func() (scanner.Channel, error)
	RetryMin time.Duration
	RetryMax time.Duration
	Sink     Poster

	seq     uint64
	version atomic.Value
}

// New creates a Service.
func New(s *scanner.Scanner, id string, sink Poster) *Service {
	return &Service{
		Scanner:     s,
		ScannerID:   id,
		Mode:        scanner.ModeContinuous,
		Timeout:     time.Second,
		PollTimeout: DefaultPollTimeout,
		RetryMin:    DefaultRetryMin,
		RetryMax:    DefaultRetryMax,
		Sink:        sink,
	}
}

// Name implements framework.Named.
func (s *Service) Name() string {
	return "scanner " + s.ScannerID
}

// Execute runs a remote command on the scanner.
func (s *Service) Execute(req *msgs.CommandRequest) *msgs.CommandResult {
	res := Execute(s.Scanner, req, s.Timeout)
	if res.Failed() {
		glog.Warningf("%s: command %s: %s", s.Name(), req.Command, res.Error)
	}
	return res
}

// Status returns the current status message.
func (s *Service) Status(online bool) *msgs.Status {
	st := &msgs.Status{
		ScannerID: s.ScannerID,
		Online:    online,
		Port:      s.Port,
		Mode:      s.Mode.String(),
	}
	if ver, ok := s.version.Load().(string); ok {
		st.Version = ver
	}
	return st
}

func (s *Service) post(msg fx.Message) {
	if !s.Sink.Post(msg) {
		glog.Warningf("%s: queue full, %T dropped", s.Name(), msg)
	}
}

// setup prepares the module after it's (re)connected.
func (s *Service) setup() error {
	if err := s.Scanner.Init(s.Timeout); err != nil {
		return err
	}
	if err := s.Scanner.Configure(s.Mode, s.Timeout); err != nil {
		return err
	}
	if ver, err := s.Scanner.SoftwareVersion(s.Timeout); err == nil {
		s.version.Store(ver)
	} else {
		glog.Warningf("%s: read version: %v", s.Name(), err)
	}
	s.post(s.Status(true))
	glog.Infof("%s: online in %s mode", s.Name(), s.Mode)
	return nil
}

func (s *Service) retryDelay() time.Duration {
	if s.RetryMin <= 0 {
		return DefaultRetryMin
	}
	return s.RetryMin
}

func (s *Service) backoff(delay time.Duration) time.Duration {
	if delay *= 2; s.RetryMax > 0 && delay > s.RetryMax {
		delay = s.RetryMax
	}
	return delay
}

// start runs setup with backoff until it succeeds.
// A channel failure is handled like one during scanning.
func (s *Service) start(ctx context.Context) error {
	delay := s.retryDelay()
	for {
		err := s.setup()
		switch scanner.KindOf(err) {
		case scanner.KindNone:
			return nil
		case scanner.KindClosed:
			return err
		case scanner.KindChannel:
			return s.handleError(ctx, err)
		}
		glog.Warningf("%s: setup: %v, retry in %s", s.Name(), err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = s.backoff(delay)
	}
}

// reconnect reopens the channel with backoff until setup succeeds.
func (s *Service) reconnect(ctx context.Context) error {
	delay := s.retryDelay()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		err := s.reopen()
		if err == nil {
			if err = s.setup(); err == nil {
				return nil
			}
		}
		if errors.Is(err, scanner.ErrClosed) {
			return err
		}
		glog.Warningf("%s: reconnect: %v, retry in %s", s.Name(), err, delay)
		delay = s.backoff(delay)
	}
}

func (s *Service) reopen() error {
	ch, err := s.Reopen()
	if err != nil {
		return err
	}
	if err := s.Scanner.Reattach(ch); err != nil {
		if closer, ok := ch.(interface{ Close() error }); ok {
			closer.Close()
		}
		return err
	}
	return nil
}

// handleError handles a failed request. It returns nil when scanning can go on.
func (s *Service) handleError(ctx context.Context, err error) error {
	switch scanner.KindOf(err) {
	case scanner.KindTimeout:
		return nil
	case scanner.KindClosed:
		return err
	case scanner.KindChannel:
		s.post(s.Status(false))
		if s.Reopen == nil {
			return err
		}
		glog.Errorf("%s: %v, reconnecting", s.Name(), err)
		return s.reconnect(ctx)
	}
	glog.Warningf("%s: %v", s.Name(), err)
	return nil
}

// Run implements framework.Runnable.
func (s *Service) Run(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	defer s.post(s.Status(false))
	poll := s.PollTimeout
	if poll <= 0 {
		poll = DefaultPollTimeout
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b, err := s.Scanner.ReadBarcode(poll)
		if err != nil {
			if err = s.handleError(ctx, err); err != nil {
				return err
			}
			continue
		}
		seq := atomic.AddUint64(&s.seq, 1)
		glog.V(1).Infof("%s: #%d %s", s.Name(), seq, b)
		s.post(msgs.NewScanEvent(s.ScannerID, seq, b))
	}
}
