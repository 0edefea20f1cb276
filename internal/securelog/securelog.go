// Package securelog logs errors whose messages may carry user data, such as
// user ids echoed back by the signaling server or device names reported by
// drivers. Only the call site and the error types are recorded.
package securelog

import (
	"fmt"

	"go.uber.org/zap"
)

// Error logs err at warn level without its message. context names the
// operation that failed.
func Error(logger *zap.Logger, context string, err error) {
	if err == nil || logger == nil {
		return
	}
	fields := []zap.Field{zap.Strings("error_types", TypeChain(err))}
	if context != "" {
		fields = append(fields, zap.String("context", context))
	}
	logger.WithOptions(zap.AddCaller(), zap.AddCallerSkip(1)).Warn("error (message withheld)", fields...)
}

// TypeChain lists the dynamic type of err and of everything it wraps,
// depth first, naming each type once. Joined errors are followed into
// every branch.
func TypeChain(err error) []string {
	var types []string
	seen := make(map[string]bool)
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if name := fmt.Sprintf("%T", e); !seen[name] {
			seen[name] = true
			types = append(types, name)
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return types
}
