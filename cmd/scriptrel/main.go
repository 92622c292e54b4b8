// Package main provides the scriptrel CLI.
//
// The CLI supports:
//   - treat: Number the raw gestor.sql/supervisor.sql sources and wrap them
//     with the header, verify call, sentinels and mark call
//   - release: Catch up the TEST and DEV databases, run the treated script on
//     TEST and mark it applied on DEV
//   - publish: Move treated sources into the numbered script directories
//   - restore: Put backed-up sources back after an aborted run
//   - apply: Apply pending scripts to a single tier
//   - status: Show what each tier has applied and what is pending
//   - doctor: Run health checks on the repository and databases
//
// Usage:
//
//	scriptrel [flags] <command>
//
// Database settings come from scriptrel.yaml or SCRIPTREL_* environment
// variables. Commands that only touch files (treat, publish, restore) need no
// database access.
package main

func main() {
	Execute()
}
