package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"

	"github.com/halcyonlabs/relay/internal/dal/postgres"
	"github.com/halcyonlabs/relay/internal/dal/rabbitmq"
	"github.com/halcyonlabs/relay/internal/service/services/relaysvc"
	"github.com/halcyonlabs/relay/internal/transport/publisher"
)

// App represents the application.
type App struct {
	relaySvc       *relaysvc.RelayService
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	kafkaWriter    *kafka.Writer
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	amqpPub := publisher.NewAMQPPublisher(rabbitClient)
	router := publisher.NewRouter(amqpPub)
	router.Register("amqp", amqpPub)

	var kafkaWriter *kafka.Writer
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		kafkaWriter = &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.Hash{},
		}
		router.Register("kafka", publisher.NewKafkaPublisher(kafkaWriter))
	}

	relaySvc := relaysvc.MustNewRelayService(
		relaysvc.WithPostgresClient(postgresClient),
		relaysvc.WithPublisher(router),
	)

	return &App{
		relaySvc:       relaySvc,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		kafkaWriter:    kafkaWriter,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Starting relay projector")
		a.relaySvc.Run(ctx)
	}()

	<-stop
	slog.Info("Shutdown signal received")

	// Cancelling stops new claims; in-flight batches finish before Run returns.
	cancel()
	wg.Wait()

	if a.kafkaWriter != nil {
		if err := a.kafkaWriter.Close(); err != nil {
			slog.Error("Kafka writer close error", "error", err)
		} else {
			slog.Info("Kafka writer closed gracefully")
		}
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	slog.Info("Application shutdown complete")
}
