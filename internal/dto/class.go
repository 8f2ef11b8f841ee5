package dto

// ClassInfo is the public view of a class, without its embedding.
type ClassInfo struct {
	ClassID int64  `json:"classId"`
	Label   string `json:"label"`
}

// MessageResponse carries a plain status message.
type MessageResponse struct {
	Message string `json:"message"`
}
