package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/aggregator"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/health"
)

// databaseDependency verifies the connection on startup and closes the
// pool on shutdown.
type databaseDependency struct {
	db database.DB
}

func (d *databaseDependency) GetName() string     { return "database" }
func (d *databaseDependency) DependsOn() []string { return nil }

func (d *databaseDependency) Start(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *databaseDependency) Stop(ctx context.Context) error {
	return d.db.Close()
}

type redisDependency struct {
	client *redis.Client
}

func (d *redisDependency) GetName() string     { return "redis" }
func (d *redisDependency) DependsOn() []string { return nil }

func (d *redisDependency) Start(ctx context.Context) error {
	return d.client.Ping(ctx)
}

func (d *redisDependency) Stop(ctx context.Context) error {
	return d.client.Close()
}

type migrationDependency struct {
	service      *database.MigrationService
	db           *sqlx.DB
	databaseName string
}

func (d *migrationDependency) GetName() string     { return "migrations" }
func (d *migrationDependency) DependsOn() []string { return []string{"database"} }

func (d *migrationDependency) Start(ctx context.Context) error {
	return d.service.Migrate(d.databaseName, d.db)
}

func (d *migrationDependency) Stop(ctx context.Context) error { return nil }

// hydrationDependency rebuilds in-memory aggregation state from the
// fact tables before any consumer starts.
type hydrationDependency struct {
	facts      *processor.Facts
	aggregator *aggregator.Aggregator
	logger     ectologger.Logger
}

func (d *hydrationDependency) GetName() string     { return "hydration" }
func (d *hydrationDependency) DependsOn() []string { return []string{"migrations"} }

func (d *hydrationDependency) Start(ctx context.Context) error {
	return processor.Hydrate(ctx, d.facts, d.aggregator, d.logger)
}

func (d *hydrationDependency) Stop(ctx context.Context) error { return nil }

type emitterDependency struct {
	emitter *aggregator.Emitter
}

func (d *emitterDependency) GetName() string     { return "emitter" }
func (d *emitterDependency) DependsOn() []string { return []string{"hydration"} }

func (d *emitterDependency) Start(ctx context.Context) error {
	return d.emitter.Start(context.Background())
}

func (d *emitterDependency) Stop(ctx context.Context) error {
	return d.emitter.Stop()
}

// consumerDependency starts after hydration so replayed history is in
// place before live traffic lands on top of it.
type consumerDependency struct {
	name     string
	consumer *kafka.Consumer
}

func (d *consumerDependency) GetName() string     { return d.name }
func (d *consumerDependency) DependsOn() []string { return []string{"hydration", "emitter"} }

func (d *consumerDependency) Start(ctx context.Context) error {
	return d.consumer.Start(context.Background())
}

func (d *consumerDependency) Stop(ctx context.Context) error {
	return d.consumer.Stop()
}

type producerDependency struct {
	producer *kafka.Producer
}

func (d *producerDependency) GetName() string     { return "kafka-producer" }
func (d *producerDependency) DependsOn() []string { return nil }

func (d *producerDependency) Start(ctx context.Context) error { return nil }

func (d *producerDependency) Stop(ctx context.Context) error {
	return d.producer.Close()
}

// serverDependency is last up and first down; readiness flips with it.
type serverDependency struct {
	echo    *echo.Echo
	port    int
	checker *health.Checker
	logger  ectologger.Logger
}

func (d *serverDependency) GetName() string { return "http-server" }

func (d *serverDependency) DependsOn() []string {
	return []string{"database", "redis", "migrations"}
}

func (d *serverDependency) Start(ctx context.Context) error {
	go func() {
		if err := d.echo.Start(fmt.Sprintf(":%d", d.port)); err != nil && err != http.ErrServerClosed {
			d.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	d.checker.SetReady(true)
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	d.checker.SetReady(false)
	return d.echo.Shutdown(ctx)
}
