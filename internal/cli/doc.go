// Package cli реализует операторскую утилиту socialwatch.
//
// CLI работает через HTTP API и не импортирует внутренние пакеты:
// outbox и state обслуживает процесс worker (--api-url), ручной
// запуск run — процесс scheduler (--scheduler-url).
//
//	client := cli.NewClient("http://localhost:8082", 0)
//	rows, err := client.ListOutbox(ctx, cli.ListOutboxOpts{Status: "dead_letter"})
//
// Вывод: таблицы text/tabwriter по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения Success/Error — в stderr, так что
// работает pipe: socialwatch outbox list --json | jq .
//
// Команды:
//   - outbox: list, show, requeue, stats
//   - state: show
//   - run: trigger, status
//
// Каждая группа создаётся фабричной функцией (NewOutboxCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
