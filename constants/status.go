package constants

// ReportState is derived from whether report_value has been written.
type ReportState string

const (
	ReportUnparsed ReportState = "UNPARSED" // report_value IS NULL
	ReportParsed   ReportState = "PARSED"   // report_value set, possibly {}
)
