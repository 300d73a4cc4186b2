package imaging

import "encoding/json"

func (p Plane) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SliceData [][]float64 `json:"slice_data"`
		DType     string      `json:"dtype"`
		Shape     []int       `json:"shape"`
	}{p.Rows(), p.DType.String(), []int{p.Height, p.Width}})
}

func (r Reduction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ReducedData       [][][]float64 `json:"reduced_data"`
		Shape             []int         `json:"shape"`
		Components        int           `json:"components"`
		ExplainedVariance []float64     `json:"explained_variance"`
	}{r.Rows(), []int{r.TimeFrames, r.ZSlices, r.Components}, r.Components, r.ExplainedVariance})
}

func (s Segmentation) MarshalJSON() ([]byte, error) {
	out := struct {
		SegmentedData any       `json:"segmented_data"`
		Method        string    `json:"method"`
		Shape         []int     `json:"shape"`
		Threshold     *float64  `json:"threshold,omitempty"`
		Centroids     []float64 `json:"centroids,omitempty"`
	}{
		SegmentedData: s.Rows(),
		Method:        string(s.Method),
		Shape:         []int{s.Height, s.Width},
		Centroids:     s.Centroids,
	}
	if s.Method == MethodOtsu {
		threshold := s.Threshold
		out.Threshold = &threshold
	}
	return json.Marshal(out)
}
