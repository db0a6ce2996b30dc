// Package sync implements the playlist synchronization core.
//
// A sync of one binding flows through four stages:
//
//	Detector -> Planner -> Gate -> Executor
//
// The Detector computes a three-way diff between the current library
// membership, the current platform membership, and the snapshot taken at
// the last successful sync. The Planner converts the diff into an
// ordered list of selectable changes, filtered by the binding's sync
// mode. The Gate enforces ownership, system-playlist, and test-prefix
// policy, plus the process-wide emergency stop. The Executor applies the
// selected changes: remote mutations batched per adapter capability with
// retry, local mutations in a single transaction, and a fresh snapshot
// written only after complete success.
package sync
