// Package runner executes a planned workflow inside the engine container.
//
// States of one execution:
//   - attempting -> succeeded            (zero exit)
//   - attempting -> retrying -> attempting (non-zero exit, budget left; the next
//     attempt uses the resume command line)
//   - attempting -> exhausted            (non-zero exit, budget spent)
//
// The retry budget is the total number of invocations. Provisioning is not retried
// here; only the workflow invocation itself is.
//
// Housekeeping runs after every execution: the workdir is archived regardless of
// the outcome, engine scratch state and a freshly created package snapshot are
// dropped only after a success.
package runner
