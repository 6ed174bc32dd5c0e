package usecase

import (
	"fmt"
	"strings"

	"interview-copilot/internal/domain/model"
)

// Turn is one prior exchange replayed into a prompt.
type Turn struct {
	Question string
	Answer   string
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func renderHistory(history []Turn, empty string) string {
	if len(history) == 0 {
		return empty
	}
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Interviewer: %s\n\nAssistant: %s", t.Question, t.Answer)
	}
	return b.String()
}

func cleanPrompt(transcript string, p model.Profile) string {
	return fmt.Sprintf(`ROLE
You help a candidate during a live technical interview. Extract the interviewer's main question from a noisy speech-to-text transcript.

CONTEXT
- Target role: %s
- Expected skills: %s
- Projects: %s

TRANSCRIPT: %s

OUTPUT
- If the transcript is noise, empty or not yet a complete question, return {"incomplete": true}.
- If several questions are present, keep only the main one.
- Repair technical terms that speech recognition mangled, using the context above.
- Drop filler words.
- Return ONLY JSON: {"clean_question": "string"}`,
		p.TargetRole, p.Skills(), p.Projects, transcript)
}

func answerPrompt(question string, p model.Profile, history []Turn) string {
	return fmt.Sprintf(`ROLE
You are a senior practitioner answering interview questions in any field. Prefer clarity to completeness.

CONTEXT
Candidate: %s (%d years of experience)
Target role: %s
Skills: %s
Projects: %s
Job description: %s

CONVERSATION SO FAR
%s

NEW QUESTION: %q

OUTPUT
1. Work out the domain and its core concepts before answering, silently.
2. Five to ten sentences, headline first.
3. Never invent achievements, metrics or employers that are not in the context. Fall back to general practitioner experience.
4. Use exact domain terminology.
5. First person, senior tone. Mention one real-world principle and one trade-off.

Return ONLY JSON:
{
  "key_points": ["insight", "trade-off", "production reality"],
  "full_answer": "...",
  "short_version": "one headline sentence",
  "followup_topics": ["topic", "topic"],
  "interviewer_intent": "what the interviewer is validating"
}`,
		orDefault(p.Name, "the candidate"), p.YearsExperience, p.TargetRole, p.Skills(), p.Projects,
		orDefault(p.JobDescription, "Not provided"),
		renderHistory(history, "None (first question)"), question)
}

func streamPrompt(question string, p model.Profile, history []Turn) string {
	return fmt.Sprintf(`Write a short (5-10 sentences) expert interview answer in Markdown.
Put any code inside fenced code blocks with a language tag.

CONTEXT
Candidate: %s
Target role: %s
Skills: %s
History: %s
Question: %q

RULES
1. Be technically precise.
2. Answer in the first person.
3. Do not invent facts about the candidate.
4. Start with the answer immediately.

ANSWER:`,
		orDefault(p.Name, "the candidate"), p.TargetRole, p.Skills(),
		renderHistory(history, "None"), question)
}

func shortenPrompt(fullAnswer string) string {
	return fmt.Sprintf(`ROLE
You edit interview answers for delivery.

ANSWER: %s

OUTPUT
- Shorten it to something that takes 20-30 seconds to say.
- Keep the core message.
- Return ONLY JSON: {"short_version": "string"}`, fullAnswer)
}

func examplePrompt(fullAnswer, projects string) string {
	return fmt.Sprintf(`ROLE
You are an interview coach who grounds answers in the candidate's own work.

ANSWER: %s
CANDIDATE PROJECTS: %s

OUTPUT
- Weave in one specific example drawn from the projects.
- Keep it natural and under two minutes when read aloud.
- Return ONLY JSON: {"augmented_answer": "string"}`, fullAnswer, orDefault(projects, "Not provided"))
}
