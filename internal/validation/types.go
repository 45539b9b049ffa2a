package validation

// CreateReportRequest is the payload for POST /reports.
type CreateReportRequest struct {
	ProductCode string `json:"product_code" validate:"required"` // must exist in the product registry
}

// WorkerResultRequest is the payload for the worker completion callback.
type WorkerResultRequest struct {
	Outcome     string `json:"outcome" validate:"required,oneof=started completed failed"`
	ArtifactB64 string `json:"artifact_b64,omitempty"` // required when outcome=completed
	ContentType string `json:"content_type,omitempty"`
	Message     string `json:"message,omitempty"` // diagnostic for failed outcomes
}
