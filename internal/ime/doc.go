// Package ime connects a key-processing engine to a host input method
// framework.
//
// # Architecture Overview
//
// A host (IBus on Linux, or the terminal demo) delivers raw key events for an
// input context. The Session normalizes them, hands each key press to the
// Engine and turns the Result into commit and preview notifications on the
// focused FocusTarget:
//
//	Host event ──► Session.FilterEvent ──► Engine.PressKey ──► Result
//	                                                            │
//	FocusTarget ◄── NotifyCommit / NotifyPreview ◄── Plan ◄─────┘
//
// The return value of FilterEvent tells the host whether to suppress its own
// handling of the key.
//
// # Results
//
// Every engine result maps to a fixed action sequence:
//
//	┌───────────────┬──────────────────────────────┬──────────┐
//	│ Result        │ Actions                      │ Consumed │
//	├───────────────┼──────────────────────────────┼──────────┤
//	│ Bypass        │ none                         │ no       │
//	│ ToggleHangul  │ none                         │ yes      │
//	│ ClearPreedit  │ commit ""                    │ yes      │
//	│ Commit        │ commit c                     │ yes      │
//	│ CommitPreedit │ commit c1, preview c2        │ yes      │
//	│ Preedit       │ preview c                    │ yes      │
//	│ CommitCommit  │ commit c1, commit c2         │ yes      │
//	│ CommitBypass  │ commit c                     │ no       │
//	└───────────────┴──────────────────────────────┴──────────┘
//
// Committing the empty string is how a visible preedit is cleared.
//
// # Focus
//
// A Session stores only a FocusID. The host owns its targets and registers
// them in a Targets table; actions against a handle that no longer resolves
// are dropped. When focus is lost the engine is reset and whatever it
// finalizes is committed to the target being left, so a half-typed
// composition is never lost.
//
// An Observer set with WithObserver sees every handled key and every flush.
// The metrics package provides one.
//
// # IBus
//
// On Linux, IBusServer exports an org.freedesktop.IBus.Factory. Each
// CreateEngine call produces one engine object with its own Session, bound
// to the engine and layout current at that moment.
package ime
