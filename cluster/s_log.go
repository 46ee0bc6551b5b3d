package cluster

import (
	"io"

	"github.com/go-sif/rdd/internal/rpc"
	"github.com/go-sif/rdd/logging"
	log "github.com/sirupsen/logrus"
)

type logServer struct {
	// forwarded entries are written to their own logger, so that hooks on the standard logger
	// never forward them again
	logger *log.Logger
}

// createLogServer creates a log server
func createLogServer() *logServer {
	logger := log.New()
	logger.SetLevel(log.TraceLevel)
	return &logServer{logger: logger}
}

// Log messages to the console coming from workers
func (s *logServer) Log(stream rpc.LogService_LogServer) error {
	count := 0
	for {
		message, err := stream.Recv()
		if err == io.EOF {
			// Then we're out of messages to print and no errors have occurred, so Ack
			return stream.SendAndClose(&rpc.LogAck{Count: count})
		} else if err != nil {
			return err
		}
		count++
		s.logger.WithField("worker", message.Source).Log(logging.ToLogrus(message.Level), message.Message)
	}
}
