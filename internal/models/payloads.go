package models

// These structs define the JSON payloads exchanged with the HTTP functions.

// UploadResponse is returned by the upload function once the document is indexed.
type UploadResponse struct {
	SessionID  string `json:"sessionId"`
	Key        string `json:"key"`
	FileHash   string `json:"fileHash"`
	PageCount  int    `json:"pageCount,omitempty"`
	ChunkCount int    `json:"chunkCount"`
}

// AskRequest is the input for the ask function.
type AskRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// AskResponse carries the answer and the chunks it was grounded on.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Source identifies one retrieved chunk.
type Source struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ErrorResponse is the body written for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
