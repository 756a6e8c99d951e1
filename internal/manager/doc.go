// Package manager owns the lifecycle of the single on-device inference handle:
// loading a downloaded model, generating replies, unloading and deleting.
// It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig; NewWithConfig applies defaults.
//   - types.go: lifecycle state variant, Snapshot, Reply.
//   - errors.go: error types and helpers (IsBusy, IsNotLoaded, IsNotDownloaded, ...).
//   - load.go: Load and task release.
//   - infer.go: Generate.
//   - unload.go: Unload, Delete, Close.
//   - status_report.go, sanity.go: read-only reporting.
//
// Build tags and runtimes:
//
//   - In-process llama: go-llama.cpp engine, enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     Without the tag adapter_llama_stub.go reports the dependency as unavailable.
package manager
