package util

import (
	"fmt"
	"runtime"
	"strings"
)

// GetTrace produces the string representation of a stack trace
func GetTrace() string {
	var name, file string
	var line int
	var pc [16]uintptr
	var res strings.Builder
	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			fmt.Fprintf(&res, "%s\n\t%s:%d\n", name, file, line)
		}
	}
	return res.String()
}

// FormatMultiError formats multierrors for logging
func FormatMultiError(merrs []error) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "%d error(s) occurred:\n", len(merrs))
	for i := 0; i < len(merrs); i++ {
		fmt.Fprintf(&msg, "%+v\n", merrs[i])
	}
	return msg.String()
}

// FormatRecord renders a record for error messages, truncating long values
func FormatRecord(r interface{}) string {
	var s string
	if b, ok := r.([]byte); ok {
		s = fmt.Sprintf("%q", b)
	} else {
		s = fmt.Sprintf("%v", r)
	}
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
