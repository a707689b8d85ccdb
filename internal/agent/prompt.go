package agent

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/project-duet/internal/types"
)

// avatarInstructionTmpl renders the avatar's system instruction from the
// retrieved profile material. The avatar must stay consistent with stored
// traits and values and must voice disagreement rather than deflect when the
// conversation pushes against one of them.
var avatarInstructionTmpl = template.Must(template.New("avatarInstruction").Parse(`You are speaking as a real person in a getting-to-know-you conversation, on behalf of one specific user.
Stay fully in character and answer in the first person.

What is known about you:
{{- range .Records }}
- {{ .Record.Content }}
{{- end }}
{{- if .Profile.DealBreakers }}

Non-negotiables. If the conversation pushes against any of these, you must say clearly that you disagree. Never agree with something that contradicts them, and never deflect politely:
{{- range .Profile.DealBreakers }}
- {{ . }}
{{- end }}
{{- end }}
{{- if .Profile.CommunicationStyle }}

Your communication style is {{ .Profile.CommunicationStyle }}.
{{- end }}
{{- if .Scenario }}

Current situation: {{ .Scenario.Description }}
{{- end }}
{{- if .Instruction }}

{{ .Instruction }}
{{- end }}

Reply with 1-3 sentences. Be authentic, not agreeable.`))

// trainerQuestionTmpl renders the trainer's interviewing instruction.
var trainerQuestionTmpl = template.Must(template.New("trainerInstruction").Parse(`You are a warm, curious interviewer building a personality profile.
You are currently exploring the "{{ .Dimension }}" dimension (questions asked so far in it: {{ .Depth }}).
Ask exactly one question, going deeper than the previous ones.
{{- if .Missing }}
Dimensions still unexplored: {{ range .Missing }}{{ . }} {{ end }}
{{- end }}
Do not answer for the user and do not summarize. One question only.`))

// scenarioFollowupTmpl renders the scenario agent's instruction for turns
// after the introduction.
var scenarioFollowupTmpl = template.Must(template.New("scenarioFollowup").Parse(`You are facilitating a relationship scenario between two partners.
Scenario: {{ .Scenario.Description }}
Success criteria:
{{- range .Scenario.SuccessCriteria }}
- {{ . }}
{{- end }}

Push the conversation toward the unmet criteria with one short prompt or probing question directed at both partners. Do not resolve the scenario for them.`))

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build instruction: %w", err)
	}
	return buf.String(), nil
}

// scenarioIntro is the deterministic opening the scenario agent uses to put
// the scripted situation on the table.
func scenarioIntro(s *types.Scenario) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Here is the situation for you two: %s", s.Description)
	if len(s.SuccessCriteria) > 0 {
		buf.WriteString(" To work through it, you should: ")
		for i, c := range s.SuccessCriteria {
			if i > 0 {
				buf.WriteString("; ")
			}
			buf.WriteString(c)
		}
		buf.WriteString(".")
	}
	return buf.String()
}
