package types

type VisitorCount struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Entries   int    `json:"entries"`
}

type Departure struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	At        string `json:"at"`
}

type DailyReport struct {
	Date            string        `json:"date"` // YYYY-MM-DD
	Entries         int           `json:"entries"`
	Denies          int           `json:"denies"`
	TopVisitor      *VisitorCount `json:"top_visitor,omitempty"`
	LatestDeparture *Departure    `json:"latest_departure,omitempty"`
}

type DwellRank struct {
	StudentID    string `json:"student_id"`
	Name         string `json:"name,omitempty"`
	TotalSeconds int64  `json:"total_seconds"`
}

type WeeklyReport struct {
	Start string      `json:"start"` // YYYY-MM-DD, inclusive
	End   string      `json:"end"`   // YYYY-MM-DD, exclusive
	Dwell []DwellRank `json:"dwell"` // longest total dwell first
}
