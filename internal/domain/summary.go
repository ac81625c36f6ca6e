package domain

// Summary holds the statistics derived from a Dataset. It is written as a
// single flat JSON object; there is no nested "summary" key.
type Summary struct {
	TotalItems         int            `json:"total_items"`
	ProcessedAt        string         `json:"processed_at"`
	UniqueUsers        int            `json:"unique_users"`
	AverageTitleLength float64        `json:"average_title_length"`
	ItemsByUser        map[string]int `json:"items_by_user"`
}
