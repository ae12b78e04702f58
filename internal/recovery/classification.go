package recovery

import "strings"

// Severity is the classification of an error for recovery purposes.
type Severity int

const (
	Transient Severity = iota
	Recoverable
	Fatal
	Cascade
)

func (s Severity) String() string {
	switch s {
	case Transient:
		return "transient"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	case Cascade:
		return "cascade"
	default:
		return "unknown"
	}
}

// ErrorCategory names the broad family of an error being classified;
// classification is driven by the category plus, when only free-form
// text is available, substring heuristics over the message.
type ErrorCategory string

const (
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryNetwork    ErrorCategory = "network"
	CategoryPipeline   ErrorCategory = "pipeline"
	CategoryResource   ErrorCategory = "resource"
	CategoryFormat     ErrorCategory = "format"
	CategoryPermission ErrorCategory = "permission"
	CategoryMemory     ErrorCategory = "memory"
	CategorySystem     ErrorCategory = "system"
)

// Classify maps an error category to a Severity:
//
//	timeout                                  -> Transient
//	network (non-timeout), pipeline,
//	  resource (non-memory)                  -> Recoverable
//	format, permission                       -> Fatal
//	memory exhaustion, system                -> Cascade
func Classify(category ErrorCategory) Severity {
	switch category {
	case CategoryTimeout:
		return Transient
	case CategoryNetwork, CategoryPipeline, CategoryResource:
		return Recoverable
	case CategoryFormat, CategoryPermission:
		return Fatal
	case CategoryMemory, CategorySystem:
		return Cascade
	default:
		return Recoverable
	}
}

// ClassifyMessage infers an ErrorCategory from free-form error text, for
// callers (e.g. subprocess stderr parsing) that do not yet carry a
// structured category. Substrings are checked in order of specificity.
func ClassifyMessage(msg string) ErrorCategory {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out") || strings.Contains(m, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(m, "out of memory") || strings.Contains(m, "oom") || strings.Contains(m, "cannot allocate memory"):
		return CategoryMemory
	case strings.Contains(m, "permission denied") || strings.Contains(m, "access denied") || strings.Contains(m, "eacces"):
		return CategoryPermission
	case strings.Contains(m, "invalid format") || strings.Contains(m, "unsupported codec") || strings.Contains(m, "malformed") || strings.Contains(m, "corrupt"):
		return CategoryFormat
	case strings.Contains(m, "connection refused") || strings.Contains(m, "connection reset") || strings.Contains(m, "no route to host") || strings.Contains(m, "dns"):
		return CategoryNetwork
	case strings.Contains(m, "state change") || strings.Contains(m, "pipeline") || strings.Contains(m, "element"):
		return CategoryPipeline
	case strings.Contains(m, "too many open files") || strings.Contains(m, "resource temporarily unavailable"):
		return CategoryResource
	case strings.Contains(m, "panic") || strings.Contains(m, "segmentation fault") || strings.Contains(m, "kernel"):
		return CategorySystem
	default:
		return CategoryNetwork
	}
}
