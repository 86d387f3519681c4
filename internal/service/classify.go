package service

import "strings"

type Verdict int

const (
	Suppress Verdict = iota
	Forward
)

func (v Verdict) String() string {
	if v == Forward {
		return "forward"
	}
	return "suppress"
}

// Classify returns Forward if chunk contains any of keywords, the match is
// case sensitive.
func Classify(chunk string, keywords []string) Verdict {
	for _, k := range keywords {
		if k != "" && strings.Contains(chunk, k) {
			return Forward
		}
	}
	return Suppress
}

// Classifier decides which output lines are worth a notification.
type Classifier struct {
	Keywords []string
}

func (c Classifier) Stdout(chunk string) Verdict {
	return Classify(chunk, c.Keywords)
}

// Stderr always forwards, errors are never filtered.
func (c Classifier) Stderr(string) Verdict {
	return Forward
}
