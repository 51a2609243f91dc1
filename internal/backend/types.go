package backend

// ModerateRequest is the fallback moderation request body.
type ModerateRequest struct {
	Message    string `json:"message"`
	MessageID  string `json:"message_id"`
	PlayerID   int64  `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
}

// moderateResponse is the fallback moderation response body.
type moderateResponse struct {
	ModerationState moderationState `json:"moderation_state"`
}

type moderationState struct {
	PIIResult         *piiResult     `json:"pii_result,omitempty"`
	ContentResult     *contentResult `json:"content_result,omitempty"`
	RecommendedAction *modAction     `json:"recommended_action,omitempty"`
}

type piiResult struct {
	PIIPresence bool   `json:"pii_presence"`
	PIIType     string `json:"pii_type,omitempty"`
	PIIIntent   bool   `json:"pii_intent,omitempty"`
}

type contentResult struct {
	MainCategory string             `json:"main_category"`
	Categories   map[string]float64 `json:"categories,omitempty"`
}

type modAction struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type flagRequest struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

type flagResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
