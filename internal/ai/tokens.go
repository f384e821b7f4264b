package ai

// EstimateTokens approximates the token count as ceil(chars/4). It is used
// for display and soft budgeting only, never for hard truncation.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
