// Package history records device property changes.
//
// A Recorder subscribes to full device pushes from every controller and
// diffs each one against the properties it last saw for that device. Changed
// values are written to the property_history SQLite table and, when they are
// numeric, sent to InfluxDB as telemetry samples.
//
// History is an audit trail for the API. It is never read back to rebuild a
// device registry; controllers are always the source of truth.
//
// # Usage
//
//	repo := history.NewSQLiteRepository(db)
//	rec := history.NewRecorder(history.Options{
//	    Repository: repo,
//	    Telemetry:  influx,
//	    Retention:  cfg.Database.Retention,
//	    Logger:     log.Component("history"),
//	})
//	rec.Start(ctx)
//	defer rec.Stop()
//
//	unsubscribe := controllers.OnDeviceChange(rec.Observe)
//	defer unsubscribe()
//
//	entries, err := repo.Find(ctx, history.Query{ControllerID: "home", UUID: id})
package history
