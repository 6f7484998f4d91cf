// Package lock реализует распределённую блокировку для single-leader run.
//
// Захват — одна атомарная операция SET key owner NX PX ttl, где owner —
// случайный токен, новый для каждого захвата. Освобождение — Lua-скрипт
// compare-and-delete на стороне Redis: ключ удаляется только если его
// значение всё ещё равно токену владельца. Это не даёт процессу снять
// блокировку, которую после истечения TTL уже захватил другой процесс.
//
// Ошибка связи с Redis трактуется как "не захвачено" (fail-closed):
// лучше пропустить запланированный run, чем выполнить его дважды.
//
// Использование:
//
//	locker := lock.NewRedis(rdb, logger)
//	lease, err := locker.Acquire(ctx, "social-fetch", 30*time.Minute)
//	if err != nil {
//	    logger.Warn("lock backend error", "error", err)
//	}
//	if !lease.Acquired {
//	    return // другой процесс уже выполняет run
//	}
//	defer lease.Release(context.Background())
package lock
