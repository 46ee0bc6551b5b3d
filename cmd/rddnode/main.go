// Command rddnode runs a coordinator or a worker of an rdd cluster, or a local in-process
// Session. Coordinators and local Sessions count the distinct words of text files.
//
//	rddnode --role worker --coordinator-host 10.0.0.1 --port 1644
//	rddnode --role coordinator --workers 2 --input 'books/*.txt' --output s3://bucket/words
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-sif/rdd"
	"github.com/go-sif/rdd/cluster"
	"github.com/go-sif/rdd/functions"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	flag.String("role", "local", "role of this node: coordinator, worker or local")
	flag.String("host", "0.0.0.0", "hostname to bind to")
	flag.Int("port", 1643, "port to bind to")
	flag.String("coordinator-host", "127.0.0.1", "hostname of the coordinator")
	flag.Int("coordinator-port", 1643, "port of the coordinator")
	flag.Int("workers", 1, "number of workers (to wait for, or to start in-process when local)")
	flag.Int("task-slots", 2, "concurrent tasks per worker")
	flag.Duration("join-timeout", 30*time.Second, "how long the coordinator waits for workers to join")
	flag.Int("max-connections", 0, "maximum concurrent connections, 0 for no limit")
	flag.String("log-level", "INFO", "log level")
	flag.String("forward-level", "WARN", "workers forward log entries at or above this level to the coordinator")
	flag.StringP("input", "i", "", "glob of text files to read")
	flag.StringP("output", "o", "", "where to write the distinct words (local path or s3://), optional")
	flag.Bool("progress", false, "display progress bars")
}

func loadConfig() error {
	flag.Parse()
	viper.SetConfigName("rddnode")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.rdd")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return err
	}
	viper.SetEnvPrefix("rdd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// wordCount counts the distinct words of the input, optionally saving them
func wordCount(ctx context.Context, s *rdd.Session) error {
	input := viper.GetString("input")
	if len(input) == 0 {
		return fmt.Errorf("--input is required")
	}
	lines, err := s.TextFile(input)
	if err != nil {
		return err
	}
	words, err := lines.MapPartitions(functions.Words())
	if err != nil {
		return err
	}
	if words, err = words.Map(functions.Lower()); err != nil {
		return err
	}
	if words, err = words.Distinct(); err != nil {
		return err
	}
	if words, err = words.Persist(); err != nil {
		return err
	}
	count, err := words.Count(ctx)
	if err != nil {
		return err
	}
	log.Infof("Found %d distinct words", count)
	if output := viper.GetString("output"); len(output) > 0 {
		if err := words.SaveAsTextFile(ctx, output); err != nil {
			return err
		}
		log.Infof("Saved distinct words to %s", output)
	}
	log.Info(s.Stats())
	return nil
}

func sessionOptions() []rdd.Option {
	return []rdd.Option{
		rdd.WithLogLevel(viper.GetString("log-level")),
		rdd.WithProgressBar(viper.GetBool("progress")),
	}
}

func run(ctx context.Context) error {
	role := viper.GetString("role")
	if role == "local" {
		opts := append(sessionOptions(), rdd.WithWorkers(viper.GetInt("workers")), rdd.WithTaskSlots(viper.GetInt("task-slots")))
		s, err := rdd.NewLocalSession(opts...)
		if err != nil {
			return err
		}
		defer s.Close()
		return wordCount(ctx, s)
	}
	node, err := cluster.CreateNodeInRole(role, &cluster.NodeOptions{
		Host:              viper.GetString("host"),
		Port:              viper.GetInt("port"),
		CoordinatorHost:   viper.GetString("coordinator-host"),
		CoordinatorPort:   viper.GetInt("coordinator-port"),
		NumWorkers:        viper.GetInt("workers"),
		WorkerJoinTimeout: viper.GetDuration("join-timeout"),
		TaskSlots:         viper.GetInt("task-slots"),
		MaxConnections:    viper.GetInt("max-connections"),
		LogForwardLevel:   viper.GetString("forward-level"),
		SessionOptions:    sessionOptions(),
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		node.Stop()
	}()
	if !node.IsCoordinator() {
		return node.Start()
	}
	started := make(chan error, 1)
	go func() {
		started <- node.Start()
	}()
	jobErr := node.Run(ctx, wordCount)
	node.GracefulStop()
	if err := <-started; err != nil && jobErr == nil {
		return err
	}
	return jobErr
}

func main() {
	if err := loadConfig(); err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}
