package dto

// JobRunResponse reports a manually triggered SLA scan.
type JobRunResponse struct {
	Job        string `json:"job"`
	Skipped    bool   `json:"skipped"`
	Scanned    int    `json:"scanned"`
	Notified   int    `json:"notified"`
	Suppressed int    `json:"suppressed"`
	Escalated  int    `json:"escalated"`
	Failed     int    `json:"failed"`
}
