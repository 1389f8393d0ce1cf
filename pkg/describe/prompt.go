package describe

import (
	"fmt"
	"strings"
)

// DefaultUsername is used when the user has not set a name.
const DefaultUsername = "User"

const guidePrompt = "You are a computer vision model; your task is to act as a guide for the visually impaired. " +
	"Your output is going to be turned into speech, please respond to %s's prompt in a concise manner: %s"

// BuildPrompt wraps the user's question in the guide instructions. Extra
// context lines, if any, follow the question.
func BuildPrompt(username, question string, context ...string) string {
	if strings.TrimSpace(username) == "" {
		username = DefaultUsername
	}
	p := fmt.Sprintf(guidePrompt, username, strings.TrimSpace(question))

	var lines []string
	for _, c := range context {
		if c = strings.TrimSpace(c); c != "" {
			lines = append(lines, c)
		}
	}
	if len(lines) > 0 {
		p += "\n\nContext you may use if relevant:\n- " + strings.Join(lines, "\n- ")
	}
	return p
}

// Apology is spoken when a description fails.
func Apology(username string) string {
	if strings.TrimSpace(username) == "" {
		username = DefaultUsername
	}
	return fmt.Sprintf("Sorry %s, there was an error in processing that image. Please try again.", username)
}

// MissingKeyMessage is shown when no API key is configured.
const MissingKeyMessage = "Please enter a valid API key in settings."

// Mode selects a canned question for requests that carry no speech.
type Mode string

const (
	ModeGeneral  Mode = "general"
	ModeReadText Mode = "read_text"
)

var modePrompts = map[Mode]string{
	ModeGeneral:  "Describe what is in front of me in one sentence, mentioning anything I might walk into.",
	ModeReadText: "Read out any text in this image, including small or far-away text. If there is none, say so.",
}

// Question returns the canned question for the mode.
func (m Mode) Question() string {
	return modePrompts[m]
}

// ParseMode parses a mode name. The empty string is ModeGeneral.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeGeneral, nil
	case ModeGeneral, ModeReadText:
		return m, nil
	default:
		return "", fmt.Errorf("describe: unknown mode %q", s)
	}
}
