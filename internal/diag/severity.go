package diag

// Severity ranks a diagnostic. Any error makes analyze exit with status 1;
// warnings, such as unknown description keys, are only printed.
type Severity uint8

const (
	SevWarning Severity = iota + 1
	SevError
)

var severityNames = [...]string{
	SevWarning: "WARNING",
	SevError:   "ERROR",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) && severityNames[s] != "" {
		return severityNames[s]
	}
	return "UNKNOWN"
}
