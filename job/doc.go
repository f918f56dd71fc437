// Package job defines the persisted job record, the worker capability
// contract resolved from a job's stored worker name, and the registry
// that performs that resolution.
//
// A Job moves through the stored lifecycle states (scheduled, available,
// executing, retryable, completed, discarded). The exec package owns the
// in-flight state machine for a single attempt; this package owns the
// durable shape handed to the store.
//
// # Workers
//
// A worker is registered under a stable string name and must satisfy the
// Worker interface: Perform runs the job and returns a verdict, Timeout
// supplies the hard wall-clock deadline, and Backoff supplies the retry
// delay after a failed attempt. Typed workers are registered through
// RegisterWorker, which closes over JSON unmarshalling of the args
// payload:
//
//	def := job.NewWorkerDefinition("send-email", func(ctx context.Context, args EmailArgs, j *job.Job) any {
//	    return send(ctx, args.To, args.Subject)
//	})
//	job.RegisterWorker(registry, def)
package job
