package task

import (
	"fmt"

	"github.com/pathwise/pathwise-api/internal/domain"
)

// Prompt construction for the generation tasks. Prompts are built from
// the task payload only; stages never feed each other's output, which
// keeps them independently retryable and lets the final pair run in
// parallel.

const analyzeSystemPrompt = `You are an ATS resume analyst. Compare the resume against the job description.
Respond with a single JSON object with this shape:
{
  "matched_skills": [{"name": "...", "importance": "critical|high|medium|low", "confidence": 0.0}],
  "partial_matches": [{"name": "...", "importance": "critical|high|medium|low", "confidence": 0.0}],
  "missing_skills": [{"name": "...", "importance": "critical|high|medium|low", "confidence": 0.0}],
  "keyword_density": 0,
  "experience_match": {"match": 0, "summary": "..."}
}
keyword_density and experience_match.match are percentages from 0 to 100.`

const optimizeSystemPrompt = `You are a professional resume writer. Rewrite the resume to align with the job description.
Keep every claim truthful to the original resume; strengthen wording, reorder content, and surface relevant keywords.
Respond with the full optimized resume as plain text.`

const coverLetterSystemPrompt = `You are a professional cover letter writer.
Write a concise, specific cover letter for the given role, grounded in the resume.
Respond with the letter as plain text, no preamble.`

func analyzePrompts(resumeText, jobDescription string) (string, string) {
	user := fmt.Sprintf("Resume:\n%s\n\nJob description:\n%s", resumeText, jobDescription)
	return analyzeSystemPrompt, user
}

func optimizePrompts(resumeText, jobDescription string) (string, string) {
	user := fmt.Sprintf("Resume:\n%s\n\nJob description:\n%s", resumeText, jobDescription)
	return optimizeSystemPrompt, user
}

func coverLetterPrompts(resumeText, companyName, roleTitle, jobDescription string) (string, string) {
	user := fmt.Sprintf("Company: %s\nRole: %s\n\nJob description:\n%s\n\nResume:\n%s",
		companyName, roleTitle, jobDescription, resumeText)
	return coverLetterSystemPrompt, user
}

// guideSectionInstructions maps each prep-guide section to what its
// stage should produce.
var guideSectionInstructions = map[string]string{
	domain.SectionCompanyResearch:     "Research the company: mission, products, market position, recent news, culture signals. Write a briefing a candidate can absorb in five minutes.",
	domain.SectionRoleAnalysis:        "Analyze the role: core responsibilities, success criteria, required and implied skills, and how the role likely fits into the team.",
	domain.SectionTechnicalPrep:       "Prepare the candidate technically: the topics most likely to come up, concrete review areas, and representative technical questions with strong answers.",
	domain.SectionBehavioralFramework: "Build a behavioral interview framework: the competencies this role screens for and STAR-format guidance for each.",
	domain.SectionStoryMapping:        "Map experience to stories: identify the strongest talking points for this role and shape each into a concise narrative.",
	domain.SectionQuestions:           "Write thoughtful questions the candidate should ask the interviewers, grouped by audience (recruiter, hiring manager, peers).",
	domain.SectionStrategy:            "Write an overall interview strategy: how to open, themes to reinforce, risks to preempt, and how to close.",
}

func guideStagePrompts(section string, payload prepGuidePayload) (string, string) {
	system := fmt.Sprintf("You are an expert interview coach preparing a candidate for a specific role. %s Respond in well-structured Markdown.",
		guideSectionInstructions[section])
	user := fmt.Sprintf("Company: %s\nRole: %s\n\nJob description:\n%s",
		payload.CompanyName, payload.RoleTitle, payload.JobDescription)
	return system, user
}
