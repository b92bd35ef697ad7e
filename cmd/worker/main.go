// Command worker runs a Temporal worker hosting the experiment workflow and
// its coordinator activities.
package main

import (
	"flag"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/medbench/engine/internal/worker"
)

func main() {
	var (
		hostPort  = flag.String("temporal", client.DefaultHostPort, "Temporal frontend host:port")
		namespace = flag.String("namespace", client.DefaultNamespace, "Temporal namespace")
		taskQueue = flag.String("task-queue", "experiment-processing", "task queue to poll")
		redisAddr = flag.String("redis", "", "Redis address for the distributed processing guard (empty uses a local guard)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	c, err := client.Dial(client.Options{
		HostPort:  *hostPort,
		Namespace: *namespace,
	})
	if err != nil {
		logger.Error("failed to connect to Temporal", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	mem := worker.InitializeStore()
	guard := worker.InitializeGuard(*redisAddr)
	coord := worker.InitializeCoordinator(mem, guard, logger)

	w := sdkworker.New(c, *taskQueue, sdkworker.Options{})
	worker.RegisterAll(w, coord)

	logger.Info("worker starting",
		"task_queue", *taskQueue,
		"namespace", *namespace)
	if err := w.Run(sdkworker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
