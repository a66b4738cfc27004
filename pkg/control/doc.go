// Package control carries job revokes between processes over Redis pub/sub.
//
// A worker runs a Listener next to its task pool; anything holding a Redis
// client can then terminate a job by id:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	l, _ := control.NewListener(control.Config{Redis: rdb, Terminator: pool})
//	go l.Run(ctx)
//
//	control.Revoke(ctx, rdb, control.DefaultChannel, "job-42", syscall.SIGTERM)
//
// Messages are JSON objects of the form {"job_id": "...", "signal": "SIGTERM"}.
// Revokes for unknown jobs are ignored by the pool.
package control
