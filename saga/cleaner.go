package saga

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Cleaner purges one saga leg's outbox rows that reached a terminal saga
// status with a COMPLETED delivery. Terminal rows are pure audit trail,
// so the cleaner runs at long intervals (the default schedule is
// @midnight) on its own cron runner.
type Cleaner struct {
	helper *Helper
	cron   *cron.Cron
	spec   string
	logger Logger
}

var _ Loggable = (*Cleaner)(nil)

func NewCleaner(helper *Helper, settings Settings) *Cleaner {
	if helper == nil {
		panic("helper is mandatory")
	}
	validateSettings(&settings)
	return &Cleaner{
		helper: helper,
		cron:   cron.New(),
		spec:   settings.CleanupSchedule,
		logger: &NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (c *Cleaner) SetLogger(l Logger) {
	c.logger = l
}

// Start registers the cleanup job and starts the cron runner.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.spec, func() {
		c.clean(context.Background())
	}); err != nil {
		return fmt.Errorf("registering outbox cleanup job: %w", err)
	}
	c.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for a running cleanup to finish.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
}

// clean performs one cleanup pass.
func (c *Cleaner) clean(ctx context.Context) {
	terminal := TerminalSagaStatuses()
	messages, err := c.helper.MessagesByOutboxStatusAndSagaStatus(ctx, OutboxCompleted, terminal...)
	if err != nil {
		c.logger.Error("querying outbox messages for clean-up", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	// The payloads are logged once as an audit trail before they are gone.
	for _, m := range messages {
		c.logger.Debug(fmt.Sprintf("cleaning up outbox message %s with payload: %s", m.Id, m.Payload))
	}

	if err := c.helper.DeleteByOutboxStatusAndSagaStatus(ctx, OutboxCompleted, terminal...); err != nil {
		c.logger.Error("deleting outbox messages during clean-up", err)
		return
	}
	c.logger.Info(fmt.Sprintf("%d outbox messages deleted during clean-up", len(messages)))
}
