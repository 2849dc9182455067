package dispatch

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
)

// Dispatcher owns the two queue workers that move publications through
// their lifecycle
type Dispatcher struct {
	publishWorker *queue.Worker
	deleteWorker  *queue.Worker
	logger        *log.Logger
}

// NewDispatcher wires the publish and delete handlers to their queues
func NewDispatcher(
	publishQueue *queue.Queue,
	deleteQueue *queue.Queue,
	pubRepo repository.PublicationRepository,
	botRepo repository.BotRepository,
	sender *Sender,
	workerCfg queue.WorkerConfig,
	logger *log.Logger,
) *Dispatcher {
	if logger == nil {
		logger = NewDispatchLogger("data")
	}

	publishHandler := NewPublishHandler(pubRepo, botRepo, deleteQueue, sender, logger)
	deleteHandler := NewDeleteHandler(pubRepo, sender, logger)

	return &Dispatcher{
		publishWorker: queue.NewWorker(publishQueue, publishHandler.Handle, workerCfg, logger),
		deleteWorker:  queue.NewWorker(deleteQueue, deleteHandler.Handle, workerCfg, logger),
		logger:        logger,
	}
}

// Start launches both workers and returns a stop function that blocks until
// in-flight jobs finish
func (d *Dispatcher) Start(parent context.Context) func() {
	stopPublish := d.publishWorker.Start(parent)
	stopDelete := d.deleteWorker.Start(parent)
	d.logger.Printf("dispatch: workers started")

	return func() {
		stopPublish()
		stopDelete()
		d.logger.Printf("dispatch: workers stopped")
	}
}

// NewDispatchLogger writes to stdout and a rotated file under dir
func NewDispatchLogger(dir string) *log.Logger {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger := log.Default()
		logger.Printf("dispatch: failed to create log directory %s: %v", dir, err)
		return logger
	}

	rotor := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "dispatch.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 7,
		MaxAge:     30, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotor)
	return log.New(mw, "dispatch ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}
