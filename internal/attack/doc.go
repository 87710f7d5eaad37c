// Package attack detects abusive traffic against a single identifier from its
// rolling attempt history, independently of the per-operation counters kept
// by internal/rate.
//
// # Heuristics
//
// Over the last [Config.HistoryWindow] of attempts (frequency checks narrowed
// to [Config.FrequencyWindow]) an identifier is under attack when any of:
//
//   - more than MaxAttemptsInWindow attempts in the frequency window;
//   - ConsecutiveFailureThreshold or more trailing failures;
//   - more than RapidPairThreshold consecutive attempt pairs closer than
//     RapidInterval inside the frequency window.
//
// Every verdict is derived from the stored history at read time, so a success
// clears a failure-only attack immediately while a frequency attack persists
// until its window slides.
//
// # What this package must NOT do
//
//   - Make rate-limit decisions; internal/rate turns the verdict into a delay.
//   - Import authflow.
package attack
