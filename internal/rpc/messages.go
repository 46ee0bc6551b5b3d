package rpc

import (
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/types"
)

// MaxChunkBytes is the size of streamed chunks. 16-64kb is the ideal stream chunk size according
// to https://jbrandhorst.com/post/grpc-binary-blob-stream/, leaving room for 1kb of other things.
const MaxChunkBytes = 63 * 1024

// MaxMessageBytes bounds any single message. Task requests carry the lineage of a single
// partition, including the parallelized data it reads, so they may exceed gRPC's 4MiB default.
const MaxMessageBytes = 512 * 1024 * 1024

// WorkerDescriptor describes a registered worker
type WorkerDescriptor struct {
	ID    string
	Host  string
	Port  int
	Slots int
}

// RegisterRequest registers a worker with the coordinator. The worker's host is taken from the
// connection.
type RegisterRequest struct {
	ID    string
	Port  int
	Slots int
}

// LogMessage is a log entry forwarded from a worker
type LogMessage struct {
	Level   int
	Source  string
	Message string
}

// LogAck acknowledges a stream of LogMessages
type LogAck struct {
	Count int
}

// RunTaskRequest asks a worker to run a Task
type RunTaskRequest struct {
	Task *executor.Task
}

// RunTaskResponse carries the result of a Task, or the reason it failed. Records are
// compressed separately from the rest of the result, and streamed in chunks: the last chunk
// carries the Result or the Err.
type RunTaskResponse struct {
	Result    *executor.TaskResult
	Records   []byte
	TotalSize int
	Err       *WireError
}

// FetchBlockRequest asks a worker for a shuffle block it wrote
type FetchBlockRequest struct {
	Shuffle types.ShuffleID
	Mapper  int
	Target  int
}

// BlockChunk is a piece of a streamed shuffle block
type BlockChunk struct {
	Data      []byte
	TotalSize int
}

// UnpersistRequest asks a worker to drop the cached partitions of a Dataset
type UnpersistRequest struct {
	Dataset types.DatasetID
}

// UnpersistResponse reports the number of partitions dropped
type UnpersistResponse struct {
	Evicted int
}

// WorkerStatistics describes the data held by a worker
type WorkerStatistics struct {
	CachedPartitions int
	ShuffleBytes     int64
}
