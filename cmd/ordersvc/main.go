package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/foodcourt/ordersaga/consumer"
	zerologadapter "github.com/foodcourt/ordersaga/logger/zerolog"
	tallyadapter "github.com/foodcourt/ordersaga/metrics/tally"
	"github.com/foodcourt/ordersaga/order"
	kafkapub "github.com/foodcourt/ordersaga/publisher/kafka"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/foodcourt/ordersaga/store/pgxv5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	tally "github.com/uber-go/tally/v4"
)

const (
	paymentOutboxTable  = "payment_outbox"
	approvalOutboxTable = "restaurant_approval_outbox"
)

type ctxKey string

// txKey is the context key carrying the ambient database transaction.
var txKey saga.TxKey = ctxKey("ordersvc.tx")

func main() {
	conf, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	level, err := zerolog.ParseLevel(conf.LoggingLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger := &zerologadapter.Logger{Logger: zl}

	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{Prefix: "ordersaga"}, time.Second)
	defer scopeCloser.Close()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, conf.Postgres.ConnString)
	if err != nil {
		zl.Fatal().Err(err).Msg("connecting to postgres")
	}
	defer pool.Close()

	paymentStore := pgxv5.NewOutboxStore(paymentOutboxTable, txKey, pool)
	paymentStore.SetLogger(logger)
	approvalStore := pgxv5.NewOutboxStore(approvalOutboxTable, txKey, pool)
	approvalStore.SetLogger(logger)
	orderStore := pgxv5.NewOrderStore(txKey, pool)
	orderStore.SetLogger(logger)
	transactor := pgxv5.NewTransactor(txKey, pool)

	paymentHelper := saga.NewHelper(order.SagaType, paymentStore)
	paymentHelper.SetLogger(logger)
	approvalHelper := saga.NewHelper(order.SagaType, approvalStore)
	approvalHelper.SetLogger(logger)

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  conf.Kafka.BootstrapServers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		zl.Fatal().Err(err).Msg("creating kafka producer")
	}
	defer producer.Close()

	paymentPublisher := kafkapub.New(producer, kafkapub.TopicName(order.SagaType, "payment"))
	paymentPublisher.SetLogger(logger)
	approvalPublisher := kafkapub.New(producer, kafkapub.TopicName(order.SagaType, "restaurant approval"))
	approvalPublisher.SetLogger(logger)

	settings := saga.Settings{
		PollInterval:    conf.Outbox.PollInterval,
		InitialDelay:    conf.Outbox.InitialDelay,
		CleanupSchedule: conf.Outbox.CleanupSchedule,
	}

	schedulerFor := func(leg string, helper *saga.Helper, publisher saga.Publisher) *saga.Scheduler {
		return saga.NewScheduler(helper, publisher, settings,
			saga.WithLogger(logger),
			saga.WithCounters(
				&tallyadapter.Counter{Counter: scope.Tagged(map[string]string{"leg": leg}).Counter("outbox_published")},
				&tallyadapter.Counter{Counter: scope.Tagged(map[string]string{"leg": leg}).Counter("outbox_errors")},
			))
	}
	paymentScheduler := schedulerFor("payment", paymentHelper, paymentPublisher)
	approvalScheduler := schedulerFor("approval", approvalHelper, approvalPublisher)

	paymentCleaner := saga.NewCleaner(paymentHelper, settings)
	paymentCleaner.SetLogger(logger)
	approvalCleaner := saga.NewCleaner(approvalHelper, settings)
	approvalCleaner.SetLogger(logger)

	paymentSaga := order.NewPaymentSaga(orderStore, paymentHelper, approvalHelper)
	paymentSaga.SetLogger(logger)
	approvalSaga := order.NewApprovalSaga(orderStore, paymentHelper, approvalHelper)
	approvalSaga.SetLogger(logger)

	paymentHandler := consumer.NewPaymentResponseHandler(paymentSaga, transactor)
	paymentHandler.SetLogger(logger)
	paymentHandler.SetSkippedCounter(&tallyadapter.Counter{Counter: scope.Counter("payment_responses_skipped")})
	approvalHandler := consumer.NewApprovalResponseHandler(approvalSaga, transactor)
	approvalHandler.SetLogger(logger)
	approvalHandler.SetSkippedCounter(&tallyadapter.Counter{Counter: scope.Counter("approval_responses_skipped")})

	paymentListener, paymentConsumer := newListener(&zl, conf.Kafka, conf.Kafka.PaymentResponseTopic, paymentHandler)
	paymentListener.SetLogger(logger)
	defer paymentConsumer.Close()
	approvalListener, approvalConsumer := newListener(&zl, conf.Kafka, conf.Kafka.ApprovalResponseTopic, approvalHandler)
	approvalListener.SetLogger(logger)
	defer approvalConsumer.Close()

	paymentScheduler.Start()
	approvalScheduler.Start()
	if err := paymentCleaner.Start(); err != nil {
		zl.Fatal().Err(err).Msg("starting payment outbox cleaner")
	}
	if err := approvalCleaner.Start(); err != nil {
		zl.Fatal().Err(err).Msg("starting approval outbox cleaner")
	}
	paymentListener.Start()
	approvalListener.Start()

	zl.Info().Msg("order saga service started")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	zl.Info().Msg("shutting down")
	paymentListener.Stop()
	approvalListener.Stop()
	paymentScheduler.Stop()
	approvalScheduler.Stop()
	paymentCleaner.Stop()
	approvalCleaner.Stop()
	producer.Flush(5000)
	zl.Info().Msg("order saga service stopped")
}

func newListener(zl *zerolog.Logger, conf Kafka, topic string, handler consumer.Handler) (*consumer.Listener, *kafka.Consumer) {
	kc, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  conf.BootstrapServers,
		"group.id":           conf.GroupId,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		zl.Fatal().Err(err).Str("topic", topic).Msg("creating kafka consumer")
	}
	if err := kc.Subscribe(topic, nil); err != nil {
		zl.Fatal().Err(err).Str("topic", topic).Msg("subscribing kafka consumer")
	}
	return consumer.NewListener(kc, handler), kc
}
