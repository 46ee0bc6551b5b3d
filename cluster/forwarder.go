package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/go-sif/rdd/internal/rpc"
	"github.com/go-sif/rdd/logging"
	log "github.com/sirupsen/logrus"
)

// forwardBuffer bounds the log entries awaiting forwarding. Entries are dropped when it is full.
const forwardBuffer = 1024

var hooksLock sync.Mutex

// logForwarder sends log entries of the standard logger to the coordinator, in batches, without
// blocking the code which logs them
type logForwarder struct {
	client  *rpc.LogServiceClient
	timeout time.Duration
	hook    *logging.ForwardingHook
	entries chan *rpc.LogMessage
	done    chan struct{}
	wg      sync.WaitGroup
}

func startLogForwarder(client *rpc.LogServiceClient, source string, minLevel int, timeout time.Duration) *logForwarder {
	f := &logForwarder{
		client:  client,
		timeout: timeout,
		entries: make(chan *rpc.LogMessage, forwardBuffer),
		done:    make(chan struct{}),
	}
	f.hook = &logging.ForwardingHook{MinLevel: minLevel, Source: source, Send: f.send}
	hooksLock.Lock()
	log.AddHook(f.hook)
	hooksLock.Unlock()
	f.wg.Add(1)
	go f.drain()
	return f
}

func (f *logForwarder) send(level int, source string, message string) {
	select {
	case <-f.done:
	case f.entries <- &rpc.LogMessage{Level: level, Source: source, Message: message}:
	default:
	}
}

func (f *logForwarder) drain() {
	defer f.wg.Done()
	for {
		var batch []*rpc.LogMessage
		select {
		case <-f.done:
			return
		case m := <-f.entries:
			batch = append(batch, m)
		}
	fill:
		for len(batch) < forwardBuffer {
			select {
			case m := <-f.entries:
				batch = append(batch, m)
			default:
				break fill
			}
		}
		f.flush(batch)
	}
}

func (f *logForwarder) flush(batch []*rpc.LogMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	stream, err := f.client.Log(ctx)
	if err != nil {
		return
	}
	for _, m := range batch {
		if err := stream.Send(m); err != nil {
			return
		}
	}
	stream.CloseAndRecv()
}

// stop removes the hook from the standard logger, and stops forwarding
func (f *logForwarder) stop() {
	hooksLock.Lock()
	hooks := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	kept := make(log.LevelHooks)
	for level, levelHooks := range hooks {
		for _, h := range levelHooks {
			if h != f.hook {
				kept[level] = append(kept[level], h)
			}
		}
	}
	log.StandardLogger().ReplaceHooks(kept)
	hooksLock.Unlock()
	close(f.done)
	f.wg.Wait()
}
