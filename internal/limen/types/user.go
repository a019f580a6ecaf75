package types

type CreateUserRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
}

type Card struct {
	RFIDUID   string `json:"rfid_uid"`
	CreatedAt string `json:"created_at"`
}

type UserResponse struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Cards     []Card `json:"cards"`
}
