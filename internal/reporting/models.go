package reporting

// Stats is the dashboard summary over one agent scope.
//
// Every field is computed from the same record set, so all counts honor the same scope.
type Stats struct {
	TotalCalls    int `json:"total_calls"`
	TodayCalls    int `json:"today_calls"`
	WeekCalls     int `json:"week_calls"`
	UniqueCallers int `json:"unique_callers"`

	// TotalDurationMinutes sums each record's duration rounded to whole minutes.
	TotalDurationMinutes int `json:"total_duration_minutes"`
	// AverageDurationMinutes is over records with a positive duration.
	AverageDurationMinutes float64 `json:"average_duration_minutes"`

	// TotalBotReplies counts transcript lines spoken by the agent.
	TotalBotReplies int `json:"total_bot_replies"`

	// OverallRatingPercent is successful criteria over all criteria on non-flagged records.
	OverallRatingPercent int `json:"overall_rating_percent"`
}
