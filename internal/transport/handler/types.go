package handler

// UploadResponse is returned by POST /upload-csv.
type UploadResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// StatusResponse is returned by GET /status/{requestId}.
type StatusResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

type requestIDParam struct {
	RequestID string `validate:"required,len=32,hexadecimal,lowercase"`
}
