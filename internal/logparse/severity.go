package logparse

import (
	"math"
	"strconv"
	"strings"
)

// Canonical severity names.
const (
	Trace = "TRACE"
	Debug = "DEBUG"
	Info  = "INFO"
	Warn  = "WARN"
	Error = "ERROR"
	Fatal = "FATAL"

	// Unset marks records without a usable level value.
	Unset = "UNSET"
)

// Order lists the canonical severities from least to most severe, followed by Unset.
var Order = []string{Trace, Debug, Info, Warn, Error, Fatal, Unset}

var severityAliases = map[string]string{
	"TRACE": Trace, "TRAC": Trace, "TRC": Trace,
	"DEBUG": Debug, "DEBU": Debug, "DBG": Debug, "DEB": Debug,
	"INFO": Info, "INFORMATION": Info, "INF": Info, "NOTICE": Info,
	"WARN": Warn, "WARNING": Warn, "WRNG": Warn, "WRN": Warn,
	"ERROR": Error, "ERR": Error, "ERRO": Error,
	"FATAL": Fatal, "FATL": Fatal, "FTL": Fatal,
	"CRITICAL": Fatal, "CRIT": Fatal, "CRT": Fatal,
	"PANIC": Fatal, "PNC": Fatal, "EMERG": Fatal, "ALERT": Fatal,
}

var severityPrefixes = map[string]string{
	"TRAC": Trace,
	"DEBU": Debug,
	"INFO": Info,
	"WARN": Warn,
	"ERRO": Error,
	"FATA": Fatal,
	"CRIT": Fatal,
}

// NormalizeSeverity maps a textual level ("warning", "ERR", "Crit") to its
// canonical name. Unknown non-empty values map to INFO, empty values to UNSET.
func NormalizeSeverity(level string) string {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	if normalized == "" {
		return Unset
	}
	if n, err := strconv.Atoi(normalized); err == nil {
		return PinoLevelToString(n)
	}
	if sev, ok := severityAliases[normalized]; ok {
		return sev
	}
	if len(normalized) >= 4 {
		if sev, ok := severityPrefixes[normalized[:4]]; ok {
			return sev
		}
	}
	return Info
}

// SeverityFromValue normalizes a decoded JSON level value, accepting both
// strings and pino/bunyan numeric levels.
func SeverityFromValue(v interface{}) string {
	switch level := v.(type) {
	case string:
		return NormalizeSeverity(level)
	case float64:
		if math.IsNaN(level) || math.IsInf(level, 0) {
			return Unset
		}
		return PinoLevelToString(int(level))
	case int:
		return PinoLevelToString(level)
	default:
		return Unset
	}
}

// PinoLevelToString converts pino/bunyan numeric levels to severity names.
func PinoLevelToString(level int) string {
	switch {
	case level < 20:
		return Trace
	case level < 30:
		return Debug
	case level < 40:
		return Info
	case level < 50:
		return Warn
	case level < 60:
		return Error
	default:
		return Fatal
	}
}
