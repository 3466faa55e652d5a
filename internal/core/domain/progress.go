package domain

// SearchStage names a phase of a platform search.
type SearchStage string

// Search stages, in the order a platform search moves through them.
const (
	StageListingContainers SearchStage = "listing_containers"
	StageSearching         SearchStage = "searching"
	StageDone              SearchStage = "done"
)

// SearchProgress is a typed progress event emitted while a platform search
// runs. Events are advisory; consumers must not block.
type SearchProgress struct {
	Platform        string      `json:"platform"`
	AccountID       string      `json:"account_id,omitempty"`
	Stage           SearchStage `json:"stage"`
	ContainersDone  int         `json:"containers_done"`
	ContainersTotal int         `json:"containers_total"`
	Found           int         `json:"found"`
	Percent         float64     `json:"percent"`
}

// ProgressSink receives progress events. A nil sink discards them.
// Implementations must return quickly; slow consumers delay container
// batches.
type ProgressSink func(SearchProgress)

// Report sends p to the sink if one is set.
func (s ProgressSink) Report(p SearchProgress) {
	if s != nil {
		s(p)
	}
}
