package relay

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/kbrelay/internal/outputfmt"
	"github.com/quailyquaily/kbrelay/kb"
)

const (
	DefaultColor = 0xFFA500

	MaxTextChars      = 2000
	MaxPanelBodyChars = 4096
	MaxFooterChars    = 2048

	FeedbackPrefix = "feedback:"

	ActionPositive   = "positive"
	ActionNegative   = "negative"
	ActionRegenerate = "regenerate"
)

const (
	TextTimeoutFormat  = "Sorry, the request to the knowledge base timed out after %d seconds."
	TextAPIErrorFormat = "Sorry, I encountered an error (%d) communicating with the knowledge base."
	TextNetworkError   = "Sorry, I encountered a network error connecting to the knowledge base."
	TextUnexpected     = "Sorry, an unexpected error occurred while processing your request."
)

// SourceAnnotator builds the footer listing the sources behind an answer.
// An empty string means no footer.
type SourceAnnotator interface {
	Annotate(res kb.Result) string
}

type SourceAnnotatorFunc func(res kb.Result) string

func (f SourceAnnotatorFunc) Annotate(res kb.Result) string {
	if f == nil {
		return ""
	}
	return f(res)
}

// NoSources is the default annotator. The knowledge base does not return
// citations yet.
var NoSources SourceAnnotator = SourceAnnotatorFunc(func(kb.Result) string { return "" })

type Renderer struct {
	Color           int
	DisplaySources  bool
	Sources         SourceAnnotator
	FeedbackEnabled bool
	TimeoutSeconds  int
}

func (r Renderer) Render(res kb.Result, sourceMessageID string) Reply {
	if !res.OK() {
		return Reply{Text: FailureText(res.Failure, r.TimeoutSeconds)}
	}
	if res.Empty {
		return Reply{Text: kb.EmptyAnswerText}
	}
	color := r.Color
	if color <= 0 {
		color = DefaultColor
	}
	panel := &Panel{
		Body:  outputfmt.Truncate(res.Text, MaxPanelBodyChars),
		Color: color,
	}
	if r.DisplaySources {
		sources := r.Sources
		if sources == nil {
			sources = NoSources
		}
		panel.Footer = outputfmt.Truncate(strings.TrimSpace(sources.Annotate(res)), MaxFooterChars)
	}
	if r.FeedbackEnabled && strings.TrimSpace(sourceMessageID) != "" {
		panel.Controls = FeedbackControls(sourceMessageID)
	}
	return Reply{Panel: panel}
}

func FailureText(f *kb.Failure, timeoutSeconds int) string {
	if f == nil {
		return TextUnexpected
	}
	switch f.Kind {
	case kb.FailureAPIError:
		return fmt.Sprintf(TextAPIErrorFormat, f.StatusCode)
	case kb.FailureTimeout:
		return fmt.Sprintf(TextTimeoutFormat, timeoutSeconds)
	case kb.FailureNetwork:
		return TextNetworkError
	default:
		return TextUnexpected
	}
}

func FeedbackControls(sourceMessageID string) []Control {
	sourceMessageID = strings.TrimSpace(sourceMessageID)
	return []Control{
		{CustomID: FeedbackID(ActionPositive, sourceMessageID), Label: "👍", Style: ControlPositive},
		{CustomID: FeedbackID(ActionNegative, sourceMessageID), Label: "👎", Style: ControlNegative},
		{CustomID: FeedbackID(ActionRegenerate, sourceMessageID), Label: "🔄 Regenerate", Style: ControlNeutral},
	}
}

func FeedbackID(action, sourceMessageID string) string {
	return FeedbackPrefix + action + ":" + sourceMessageID
}

// ParseFeedbackID splits "feedback:<action>:<messageID>".
func ParseFeedbackID(customID string) (string, string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(customID), FeedbackPrefix)
	if !ok {
		return "", "", false
	}
	action, messageID, ok := strings.Cut(rest, ":")
	if !ok || action == "" || messageID == "" {
		return "", "", false
	}
	return action, messageID, true
}
