// Package security builds the configuration posture report exposed by
// otpAuth.Engine.SecurityReport.
//
// # What this package must NOT do
//
//   - Read live state. The report is derived from configuration only.
package security
