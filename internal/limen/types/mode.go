package types

type ModeResponse struct {
	Mode      string `json:"mode"` // "normal" | "register"
	StudentID string `json:"student_id,omitempty"`
}
