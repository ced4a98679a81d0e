// Package retention bounds the size of the evidence store.
//
// A Pruner deletes records older than RetentionConfig.Days and then, if
// MaxRecords is set, the oldest records beyond that cap. With ArchivePath set
// the records are first written to a JSON file in that directory.
//
//	pruner := retention.NewPruner(store, cfg.Evidence.Retention)
//	sched := retention.NewScheduler(pruner, "", logger)
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// Schedules use standard five-field cron syntax ("0 3 * * *" runs daily at
// 03:00).
package retention
