// Package turndetection decides whether the user has finished their turn
// from the transcript so far.
package turndetection

import (
	"strings"

	"github.com/milankumarIS/swaram-agent-worker/core/llms"
)

const DefaultThreshold = 0.5

var sentenceTerminals = []rune{'.', '?', '!', '।', '॥', '؟', '۔', '。', '？', '！'}

var continuationMarks = []rune{',', '،', '、', '-', '—', ':', ';', '…'}

// continuationWords end an utterance that is very likely to go on. Covers
// English plus the connectives of the Indic languages the STT model serves.
var continuationWords = map[string]struct{}{
	"and": {}, "but": {}, "or": {}, "because": {}, "so": {}, "then": {}, "that": {}, "the": {}, "a": {}, "to": {}, "with": {},
	"और": {}, "लेकिन": {}, "कि": {}, "तो": {}, "या": {}, "क्योंकि": {}, "फिर": {},
	"மற்றும்": {}, "ஆனால்": {},
	"మరియు": {}, "కానీ": {},
	"এবং": {}, "কিন্তু": {},
	"आणि": {}, "पण": {},
}

// MultilingualModel scores end-of-turn likelihood across languages.
type MultilingualModel struct {
	threshold float64
}

func NewMultilingualModel() *MultilingualModel {
	return &MultilingualModel{threshold: DefaultThreshold}
}

// EndOfTurnProbability estimates how likely pending completes the user's turn.
func (m *MultilingualModel) EndOfTurnProbability(_ []llms.Message, pending string) float64 {
	text := strings.TrimSpace(pending)
	if text == "" {
		return 0
	}

	runes := []rune(text)
	last := runes[len(runes)-1]
	for _, r := range sentenceTerminals {
		if last == r {
			return 0.9
		}
	}
	for _, r := range continuationMarks {
		if last == r {
			return 0.2
		}
	}

	words := strings.Fields(text)
	if _, ok := continuationWords[strings.ToLower(words[len(words)-1])]; ok {
		return 0.1
	}

	return 0.6
}

func (m *MultilingualModel) IsEndOfTurn(history []llms.Message, pending string) bool {
	return m.EndOfTurnProbability(history, pending) >= m.threshold
}
