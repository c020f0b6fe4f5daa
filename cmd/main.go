package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-lab/errors"
	"quiz-lab/infrastructure/storage"
	"quiz-lab/internal"
	"quiz-lab/projection"
	"quiz-lab/repositories"
	"quiz-lab/runtime"
	"quiz-lab/runtime/workers"
	"quiz-lab/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "quiz-lab"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the node, serves health checks and drives the console until the
// user quits or a signal arrives. Deferred cleanups run before main exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Store, repositories and question bank
	store := storage.NewBadgerStore(db, log, storage.WithMaxAttempts(config.TransactionAttempts))
	rooms := repositories.NewRoomRepository(store, log)
	questions := repositories.NewQuestionRepository(store, log)
	if err = seedQuestions(ctx, questions); err != nil {
		return err
	}

	engine := services.NewEngine(log, rooms, questions, services.EngineConfig{
		IdleTimeout:       config.IdleTimeout,
		HeartbeatInterval: config.HeartbeatInterval,
	})

	// 5. Supervision: directory refresh (and idle sweep), optional debug server
	directory := projection.NewDirectory()
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewDirectoryWatcher(log, engine, directory))
	if config.DebugPort != nil {
		sup.Add(internal.NewDebugServer(db, log, *config.DebugPort))
	}
	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. gRPC health server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gRPC health server", "address", address, "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Console
	c := newConsole(log, engine, sup, directory, os.Stdout, config.PlayerName, config.SinkTimeout)
	quit := make(chan struct{})
	go func() {
		c.loop(ctx, os.Stdin)
		close(quit)
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case <-quit:
		log.Info("Console closed, shutting down...")
	case err = <-errChan:
		return err
	}

	// 9. Final Cleanup
	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err = c.leave(leaveCtx); err != nil {
		log.Warn("Could not leave room on shutdown", "error", err)
	}
	healthServer.Shutdown()
	s.GracefulStop()
	stop()
	sup.Stop()
	<-supervised
	log.Info("Program stopped cleanly")
	return nil
}

func seedQuestions(ctx context.Context, questions repositories.IQuestionRepository) error {
	bank, err := runtime.NewDefaultQuestionLoader().LoadAll(runtime.QuestionBankDir)
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}
	if _, err = questions.Seed(ctx, bank); err != nil {
		return fmt.Errorf("question bank: %w", err)
	}
	return nil
}

// loop reads commands until quit, end of input or ctx is done.
// Failed commands are printed, never fatal.
func (c *console) loop(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.out.println(color.FgCyan.Render("quiz-lab console, type help"))
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := c.exec(ctx, line)
			if err != nil {
				c.out.println(color.FgRed.Render(describe(err)))
			}
			if quit {
				return
			}
		}
	}
}

func describe(err error) string {
	hint := ""
	if errors.IsRetryable(err) {
		hint = " (try again)"
	}
	return "Error: " + err.Error() + hint
}
