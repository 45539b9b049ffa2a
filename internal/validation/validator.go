package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// a "completed" result must actually carry an artifact
	v.RegisterStructValidation(workerResultStructValidation, WorkerResultRequest{})

	return v
}

func workerResultStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(WorkerResultRequest)

	if req.Outcome == "completed" && req.ArtifactB64 == "" {
		sl.ReportError(req.ArtifactB64, "artifact_b64", "ArtifactB64", "artifact_required", "completed result without artifact")
	}
}
