package main

// TaskMessage is the payload received from API -> SQS -> worker.
type TaskMessage struct {
	ReportID    string `json:"report_id"`
	ProductCode string `json:"product_code"`
}

// resultBody is what the worker posts back on the service callback.
type resultBody struct {
	Outcome     string `json:"outcome"`
	ArtifactB64 string `json:"artifact_b64,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Message     string `json:"message,omitempty"`
}
