package util

import "github.com/hauke96/sigolo/v2"

// LogBug logs an inconsistent internal state that the caller is able to continue from.
func LogBug(format string, args ...interface{}) {
	sigolo.Errorb(1, format+" - This is a bug", args...)
}
