// Package manager loads and hot-reloads the rule bundles the gateway's
// reference engine evaluates.
//
// A bundle is the full set of MPL policies read from one source — a
// single file, a directory of .yaml/.yml files, or a git checkout.
// Exactly one bundle is active at a time; reloads build and validate a
// complete replacement before swapping it in, so a broken commit or a
// half-written file never takes down inspection:
//
//	read source -> parse -> validate -> swap atomically
//	                          |
//	                          +-- on failure: keep active bundle
//
// # File and Directory Sources
//
//	cfg := &config.PolicyConfig{
//	    Mode:     "file",
//	    FilePath: "/etc/warden/rules/",
//	    Validation: config.PolicyValidationConfig{Enabled: true},
//	}
//	mgr, err := manager.NewPolicyManager(cfg, parser.NewParser(), validator.NewValidator(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	if err := mgr.LoadPolicies(); err != nil {
//	    log.Fatal(err)
//	}
//
// With Watch enabled, an fsnotify watcher reloads the bundle on file
// changes, debouncing editor write bursts into a single reload.
//
// # Git Sources
//
// In git mode the manager clones the bundle repository, polls the
// remote on an interval, and exposes the lifecycle operations the
// policy CLI drives:
//
//   - ForceSync: pull and activate the latest bundle; on validation
//     failure the checkout is rolled back so it matches the bundle that
//     stayed active
//   - RollbackToCommit: check out a known-good commit and activate it
//   - GetCurrentCommit / GetCommitHistory: the audit trail the evidence
//     records reference through PolicyVersionInfo
//
// # Bundle Identity
//
// Every bundle gets a content hash built from its policies' names,
// versions, and rule counts. Two loads of identical rules compare
// equal, which lets callers detect no-op reloads and lets evidence
// records pin the exact rule set that produced a verdict.
package manager
