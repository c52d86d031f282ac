// Package audit defines core types shared across subsystems: the audit job
// and its lifecycle state machine, the normalized report model, the error
// taxonomy, and the interfaces implemented by stores and external clients.
package audit
