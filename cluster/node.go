package cluster

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-sif/rdd"
	"github.com/go-sif/rdd/logging"
)

// NodeRole describes the intended role of a Node
type NodeRole = string

const (
	// Coordinator indicates that a node should coordinate work
	//   e.g. CreateNodeInRole(Coordinator, &NodeOptions{...})
	Coordinator NodeRole = "coordinator"
	// Worker indicates that a node should perform work
	//   e.g. CreateNodeInRole(Worker, &NodeOptions{...})
	Worker NodeRole = "worker"
)

// Job is run by a Coordinator against a Session backed by its Workers
type Job func(ctx context.Context, s *rdd.Session) error

// Node is a member of a cluster, either coordinating or performing work.
// Nodes present several methods to control their lifecycle.
type Node interface {
	IsCoordinator() bool
	Start() error // Start serves requests, blocking until the Node is stopped
	GracefulStop() error
	Stop() error
	Run(ctx context.Context, job Job) error // Run runs a Job on a Coordinator, and blocks until a Worker stops
}

// NodeOptions are options for a Node, configuring elements of a cluster
type NodeOptions struct {
	Port              int           // port for this Node to bind to
	Host              string        // hostname for this Node to bind to
	CoordinatorPort   int           // port for the Coordinator Node (potentially identical to Port if this is the Coordinator)
	CoordinatorHost   string        // [REQUIRED] hostname of the Coordinator Node (potentially identical to Host if this is the Coordinator)
	NumWorkers        int           // [REQUIRED] the number of Workers to wait for before running a Job
	WorkerJoinTimeout time.Duration // how long the Coordinator should wait for Workers to join
	WorkerJoinRetries int           // how many times a Worker should retry connecting to the Coordinator (at one second intervals)
	RPCTimeout        time.Duration // timeout for RPC calls other than running tasks
	TaskSlots         int           // concurrent tasks per Worker
	CacheMemory       int64         // bytes of persisted partitions each Worker may cache
	MaxConnections    int           // maximum concurrent connections accepted by this Node, 0 for no limit
	LogForwardLevel   string        // Workers forward log entries at or above this level to the Coordinator, empty to disable
	SessionOptions    []rdd.Option  // options for the Coordinator's Session
}

// CloneNodeOptions makes a copy of a NodeOptions
func CloneNodeOptions(opts *NodeOptions) *NodeOptions {
	return &NodeOptions{
		Port:              opts.Port,
		Host:              opts.Host,
		CoordinatorPort:   opts.CoordinatorPort,
		CoordinatorHost:   opts.CoordinatorHost,
		NumWorkers:        opts.NumWorkers,
		WorkerJoinTimeout: opts.WorkerJoinTimeout,
		WorkerJoinRetries: opts.WorkerJoinRetries,
		RPCTimeout:        opts.RPCTimeout,
		TaskSlots:         opts.TaskSlots,
		CacheMemory:       opts.CacheMemory,
		MaxConnections:    opts.MaxConnections,
		LogForwardLevel:   opts.LogForwardLevel,
		SessionOptions:    append([]rdd.Option(nil), opts.SessionOptions...),
	}
}

func ensureDefaultNodeOptionsValues(opts *NodeOptions) error {
	// fail if certain required options are not supplied
	if opts.NumWorkers <= 0 {
		return fmt.Errorf("NodeOptions.NumWorkers must be greater than 0")
	}
	if len(opts.CoordinatorHost) == 0 {
		return fmt.Errorf("NodeOptions.CoordinatorHost must be the address of the Coordinator")
	}
	if _, err := logging.ParseLevel(opts.LogForwardLevel); err != nil {
		return err
	}
	// default certain options if not supplied
	if opts.Port == 0 {
		opts.Port = 1643
	}
	if len(opts.Host) == 0 {
		opts.Host = "0.0.0.0"
	}
	if opts.CoordinatorPort == 0 {
		opts.CoordinatorPort = 1643
	}
	if opts.RPCTimeout == 0 {
		opts.RPCTimeout = 5 * time.Second
	}
	if opts.WorkerJoinTimeout == 0 {
		opts.WorkerJoinTimeout = 5 * time.Second
	}
	if opts.WorkerJoinRetries == 0 {
		opts.WorkerJoinRetries = 5
	}
	if opts.TaskSlots <= 0 {
		opts.TaskSlots = 2
	}
	if opts.CacheMemory <= 0 {
		opts.CacheMemory = 256 * 1024 * 1024
	}
	return nil
}

// connectionString returns the connection string for this node
func (o *NodeOptions) connectionString() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// coordinatorConnectionString returns the connection string for the coordinator
func (o *NodeOptions) coordinatorConnectionString() string {
	return fmt.Sprintf("%s:%d", o.CoordinatorHost, o.CoordinatorPort)
}

// CreateNodeInRole creates a node in a specific role (Coordinator or Worker)
func CreateNodeInRole(role NodeRole, opts *NodeOptions) (Node, error) {
	switch role {
	case Coordinator:
		return createCoordinator(opts)
	case Worker:
		return createWorker(opts)
	default:
		return nil, fmt.Errorf("%s is an unknown NodeRole", role)
	}
}

// CreateNode creates a node, deriving its role from $RDD_NODE_TYPE
func CreateNode(opts *NodeOptions) (Node, error) {
	role := os.Getenv("RDD_NODE_TYPE")
	if len(role) == 0 {
		return nil, fmt.Errorf("$RDD_NODE_TYPE is not set - must be \"%s\" or \"%s\"", Coordinator, Worker)
	}
	switch role {
	case Coordinator, Worker:
		return CreateNodeInRole(role, opts)
	default:
		return nil, fmt.Errorf("$RDD_NODE_TYPE=\"%s\" is an unknown NodeRole", role)
	}
}
