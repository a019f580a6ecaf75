package types

type ScanRequest struct {
	RFIDUID   string `json:"rfid_uid"`
	ScannedAt string `json:"scanned_at,omitempty"` // optional reader timestamp
}

type ScanResponse struct {
	OK         bool   `json:"ok"`
	Outcome    string `json:"outcome"`
	Action     string `json:"action,omitempty"`
	StudentID  string `json:"student_id,omitempty"`
	Name       string `json:"name,omitempty"`
	ServerTime string `json:"server_time"`
}
