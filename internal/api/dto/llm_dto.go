package dto

// AnalyzeRequest asks the classifier for a verdict without creating a ticket.
type AnalyzeRequest struct {
	RequestText string `json:"requestText"`
}

// RespondRequest asks the support assistant a free-form question.
type RespondRequest struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

// RespondResponse carries the assistant answer.
type RespondResponse struct {
	Content string `json:"content"`
}
