package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/resilience"
)

// #region kinds

const (
	KindGRPC  = "grpc"
	KindNATS  = "nats"
	KindStdio = "stdio"
	KindNone  = "none"
)

// #endregion kinds

// #region factory

// Options selects and configures a notifier.
type Options struct {
	Kind            string
	Addr            string
	NATSURL         string
	SubjectPrefix   string
	Out             io.Writer
	OutMu           *sync.Mutex
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Built is a constructed notifier plus whatever must be closed on shutdown.
type Built struct {
	Notifier Notifier
	Breaker  *resilience.Breaker
	closers  []func() error
}

// Close releases connections owned by the notifier.
func (b *Built) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds the notifier named by opts.Kind, wrapped in a circuit breaker
// when BreakerFailures > 0.
func New(opts Options) (*Built, error) {
	b := &Built{}
	switch opts.Kind {
	case KindGRPC:
		n, conn, err := DialGRPC(opts.Addr)
		if err != nil {
			return nil, err
		}
		b.Notifier = n
		b.closers = append(b.closers, conn.Close)
	case KindNATS:
		n, nc, err := ConnectNATS(opts.NATSURL, opts.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		b.Notifier = n
		b.closers = append(b.closers, func() error { nc.Close(); return nil })
	case KindStdio:
		if opts.Out == nil {
			return nil, fmt.Errorf("stdio notifier needs an output stream")
		}
		b.Notifier = NewWriter(opts.Out, opts.OutMu)
	case KindNone, "":
		b.Notifier = Discard
		return b, nil
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", opts.Kind)
	}

	if opts.BreakerFailures > 0 {
		b.Breaker = resilience.NewBreaker(opts.BreakerFailures, opts.BreakerCooldown)
		b.Notifier = WithBreaker(b.Notifier, b.Breaker)
	}
	return b, nil
}

// #endregion factory
