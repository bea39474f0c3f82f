package replay

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// #region csv
// WriteCSV writes one row per window: window, strategy, traffic totals and
// the resulting weight of each variant.
func WriteCSV(w io.Writer, variants []allocation.VariantID, reports []WindowReport) error {
	cw := csv.NewWriter(w)
	header := append([]string{"window", "strategy", "total_trials", "total_successes"}, variants...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range reports {
		trials, successes := r.Observations.Totals()
		row := []string{
			strconv.Itoa(r.Window),
			r.Strategy,
			strconv.FormatInt(trials, 10),
			strconv.FormatInt(successes, 10),
		}
		for _, v := range variants {
			row = append(row, strconv.FormatFloat(r.Result.Weights[v], 'f', 6, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.Window, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// #endregion csv

// #region jsonl
type jsonlRecord struct {
	Window          int                              `json:"window"`
	PreviousWeights allocation.Weights               `json:"previous_weights"`
	FinalWeights    allocation.Weights               `json:"final_weights"`
	Explanation     allocation.AllocationExplanation `json:"explanation"`
}

// WriteJSONL writes one JSON object per window with the full explanation.
func WriteJSONL(w io.Writer, reports []WindowReport) error {
	enc := json.NewEncoder(w)
	for _, r := range reports {
		rec := jsonlRecord{
			Window:          r.Window,
			PreviousWeights: r.PreviousWeights,
			FinalWeights:    r.Result.Weights,
			Explanation:     r.Result.Explanation,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write jsonl window %d: %w", r.Window, err)
		}
	}
	return nil
}

// #endregion jsonl
