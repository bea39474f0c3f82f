package remote

import "github.com/danielpatrickdp/adaptive-allocation/internal/allocation"

// #region messages

type readWeightsRequest struct {
	ExperimentID string `json:"experiment_id"`
}

type readWeightsResponse struct {
	Weights allocation.Weights `json:"weights"`
}

type writeWeightsRequest struct {
	ExperimentID string                           `json:"experiment_id"`
	Weights      allocation.Weights               `json:"weights"`
	Explanation  allocation.AllocationExplanation `json:"explanation"`
}

type readObservationsRequest struct {
	ExperimentID string `json:"experiment_id"`
	WindowStart  int64  `json:"window_start"`
	WindowEnd    int64  `json:"window_end"`
}

type readObservationsResponse struct {
	Observations allocation.Observations `json:"observations"`
}

// #endregion messages
