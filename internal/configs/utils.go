package configs

import (
	"fmt"
	"log"
	"time"

	"github.com/goccy/go-json"
)

func timestamped(format string) string {
	return time.Now().Format("15:04:05.000") + " <---> " + format + "\n"
}

// DPrintf logs a debug line, gated by ShowDebugInfo.
func DPrintf(format string, a ...interface{}) {
	if !ShowDebugInfo {
		return
	}
	if LogToFile {
		log.Printf(timestamped(format), a...)
	} else {
		fmt.Printf(timestamped(format), a...)
	}
}

// TPrintf logs a test-trace line, gated by ShowTestInfo.
func TPrintf(format string, a ...interface{}) {
	if !ShowTestInfo {
		return
	}
	if LogToFile {
		log.Printf(timestamped(format), a...)
	} else {
		fmt.Printf(timestamped(format), a...)
	}
}

// LPrintf logs a membership/liveness transition line.
func LPrintf(format string, a ...interface{}) {
	if !ShowWarnings {
		return
	}
	if LogToFile {
		log.Printf(timestamped(format), a...)
	} else {
		fmt.Printf(timestamped(format), a...)
	}
}

// JPrint prints a value as JSON for debugging.
func JPrint(v interface{}) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}

// JToString marshals a value to its JSON string representation.
func JToString(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Assert panics with a tagged message when cond is false. Used for
// invariant violations, never for expected business outcomes.
func Assert(cond bool, msg string) bool {
	if !cond {
		panic("[ERROR] assertion failed: " + msg)
	}
	return cond
}

// Warn logs a non-fatal warning when cond is false.
func Warn(cond bool, msg string) bool {
	if !cond {
		LPrintf("[WARN] %s", msg)
	}
	return cond
}

// CheckError panics on unexpected error. Reserved for conditions that
// indicate a programming or configuration bug, not for recoverable
// transaction outcomes (those use internal/errors.CommitError).
func CheckError(err error) {
	if err != nil {
		panic(err.Error())
	}
}
