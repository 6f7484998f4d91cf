package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lookupFunc — источник переменных окружения (os.LookupEnv в проде).
type lookupFunc func(key string) (string, bool)

// applyEnv накладывает переменные окружения. Пустые значения игнорируются.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("DB_URL", &c.Database.URL)
	e.int32("DB_MAX_CONNS", &c.Database.MaxConns)
	e.str("REDIS_URL", &c.Redis.URL)
	e.str("RABBITMQ_URL", &c.RabbitMQ.URL)

	e.str("RUN_SCHEDULE", &c.Run.Schedule)
	e.str("RUN_JOB_KEY", &c.Run.JobKey)
	e.str("RUN_TIMEZONE", &c.Run.Timezone)
	e.int("RUN_CONCURRENCY", &c.Run.Concurrency)
	e.duration("RUN_BUDGET", &c.Run.Budget)
	e.duration("RUN_INTAKE_BUFFER", &c.Run.IntakeBuffer)

	e.int("OUTBOX_BATCH_SIZE", &c.Outbox.BatchSize)
	e.duration("OUTBOX_POLL_INTERVAL", &c.Outbox.PollInterval)
	e.duration("OUTBOX_BACKOFF_BASE", &c.Outbox.BackoffBase)
	e.duration("OUTBOX_BACKOFF_MAX", &c.Outbox.BackoffMax)
	e.int("OUTBOX_MAX_ATTEMPTS", &c.Outbox.MaxAttempts)
	e.duration("OUTBOX_STALE_AFTER", &c.Outbox.StaleAfter)
	e.duration("OUTBOX_SEND_TIMEOUT", &c.Outbox.SendTimeout)

	e.duration("NOTIFY_HEARTBEAT_INTERVAL", &c.Notify.HeartbeatInterval)
	e.int("NOTIFY_WINDOW_START", &c.Notify.WindowStart)
	e.int("NOTIFY_WINDOW_END", &c.Notify.WindowEnd)
	e.int("NOTIFY_ANOMALY_ABSOLUTE", &c.Notify.AnomalyAbsolute)
	e.float("NOTIFY_ANOMALY_RATIO", &c.Notify.AnomalyRatio)
	e.int("NOTIFY_MAX_ITEMS", &c.Notify.MaxItems)

	e.str("TRANSPORT_KIND", &c.Transport.Kind)
	e.str("TRANSPORT_URL", &c.Transport.URL)
	e.str("TRANSPORT_TOKEN", &c.Transport.Token)
	e.float("TRANSPORT_RATE", &c.Transport.RatePerSecond)
	e.duration("TRANSPORT_TIMEOUT", &c.Transport.Timeout)

	e.str("FETCH_URL", &c.Fetch.URL)
	e.str("FETCH_TOKEN", &c.Fetch.Token)
	e.duration("FETCH_TIMEOUT", &c.Fetch.Timeout)

	e.str("SCHEDULER_PORT", &c.Server.SchedulerPort)
	e.str("WORKER_PORT", &c.Server.WorkerPort)

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (e *envReader) int32(key string, dst *int32) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = int32(n)
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q: %w", key, v, err))
		return
	}
	if d < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: duration must be >= 0", key))
		return
	}
	*dst = d
}
