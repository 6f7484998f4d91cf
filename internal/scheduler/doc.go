// Package scheduler запускает периодические job'ы по cron-расписанию.
//
// Единственный job socialwatch — run сбора и уведомлений (key "social-fetch",
// по умолчанию каждые 30 минут). Расписание интерпретируется в timezone
// из конфигурации; невалидная timezone → UTC.
//
// Структура:
//   - scheduler.go — Scheduler (Register, Start, Stop, Entries)
//   - cron.go      — парсинг cron-выражений и вычисление следующего запуска
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Timezone: "Europe/Moscow",
//	    Logger:   logger,
//	})
//
//	err := sched.Register(scheduler.Job{
//	    Key:     "social-fetch",
//	    Spec:    "*/30 * * * *",
//	    Timeout: 25 * time.Minute,
//	    Run:     func(ctx context.Context) error { _, err := orch.Run(ctx); return err },
//	})
//
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Перекрытие запусков:
//
// Внутри процесса следующий запуск job'а пропускается, пока не закончился
// предыдущий. Между процессами перекрытие исключает распределённая
// блокировка в orchestrator'е.
package scheduler
