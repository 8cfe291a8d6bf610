package types

// TokenCounter is the minimal token counting interface used by history windows.
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimateTokenizer provides a simple character-based token estimation.
type EstimateTokenizer struct {
	msgOverhead int
}

// NewEstimateTokenizer creates a new EstimateTokenizer.
func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{msgOverhead: 4}
}

// CountTokens counts tokens in text.
func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var chineseCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			chineseCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(chineseCount)/1.5 + float64(otherCount)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// CountMessageTokens counts tokens in a message using any counter.
func CountMessageTokens(c TokenCounter, msg Message) int {
	tokens := 4
	if e, ok := c.(*EstimateTokenizer); ok {
		tokens = e.msgOverhead
	}
	tokens += c.CountTokens(msg.Content)
	if msg.SenderName != "" {
		tokens += c.CountTokens(msg.SenderName)
	}
	if msg.Function != nil {
		tokens += c.CountTokens(msg.Function.Name)
		tokens += len(msg.Function.Arguments) / 4
	}
	return tokens
}

// CountMessagesTokens counts total tokens in a message slice.
func CountMessagesTokens(c TokenCounter, msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += CountMessageTokens(c, msg)
	}
	return total
}
