package generator

import (
	"fmt"
	"slices"
	"strings"

	"career-agent/internal/domain"
)

const noPlanPlaceholder = "No career plan has been created yet."

func firstQuestionPrompt() string {
	return strings.Join([]string{
		"You are a professional career counselor.",
		"Write the first question you would ask a user about their personal interests, skills, values and goals in order to build a career plan.",
		"This is the first question of a questionnaire series.",
		"Write only the question, with no other explanation.",
	}, "\n")
}

func nextQuestionPrompt(prior []domain.Answer) string {
	var history strings.Builder
	for _, a := range prior {
		fmt.Fprintf(&history, "Question %d: %s\nAnswer: %s\n\n", a.Seq, a.Question, a.Answer)
	}
	return strings.Join([]string{
		"You are acting as a career counselor. Below are the questions the user has already answered and their answers:",
		"",
		history.String(),
		"Based on these answers, write a meaningful next question to ask the user for career planning.",
		"The question should explore the user's skills, interests, values or career goals in more depth.",
		"Write only the question, with no other explanation.",
	}, "\n")
}

func planPrompt(answers []domain.Answer) string {
	var qa strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&qa, "Question: %s\nAnswer: %s\n\n", a.Question, a.Answer)
	}
	return strings.Join([]string{
		"You are acting as a career counselor. Based on the question and answer history below, create a personalized, comprehensive career plan for the user:",
		"",
		qa.String(),
		"The career plan must include:",
		"1. Career recommendations based on the user's interests, skills and values",
		"2. Education and skill requirements for the recommended careers",
		"3. Short-term goals (6 months - 1 year)",
		"4. Medium-term goals (1-3 years)",
		"5. Long-term goals (3-5 years)",
		"6. Recommended resources and learning paths",
		"",
		"Use a heading for each section and make the advice as personal as the user's answers allow.",
	}, "\n")
}

// replyPrompt renders history oldest first; callers pass it newest first.
// A missing or empty plan renders as the placeholder.
func replyPrompt(query string, plan *string, history []domain.Turn) string {
	planText := noPlanPlaceholder
	if plan != nil && *plan != "" {
		planText = *plan
	}

	var chat strings.Builder
	for _, t := range slices.Backward(history) {
		speaker := "AI"
		if t.IsUser {
			speaker = "User"
		}
		fmt.Fprintf(&chat, "%s: %s\n", speaker, t.Text)
	}

	return strings.Join([]string{
		"You are acting as a career counselor. The following career plan was created for the user:",
		"",
		planText,
		"",
		"Conversation history:",
		chat.String(),
		fmt.Sprintf("The user asked: %q", query),
		"",
		"Answer this question helpfully and informatively, based on the career plan and the conversation history.",
		"Your answer should include specific advice that helps the user move their career plan forward.",
	}, "\n")
}
