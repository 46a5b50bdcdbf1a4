package prompts

// ============================================================================
// Outreach Drafting Prompts (LLM)
// ============================================================================

// OutreachSystemPrompt defines the role and rules for drafting a follow-up
// message after a conversation. The draft is a suggestion shown to the user,
// never sent automatically.
const OutreachSystemPrompt = `You draft short, warm follow-up messages after an in-person conversation.

Rules:
- 2-3 sentences, casual register, no subject line.
- Reference one or two shared interests from the conversation, nothing else.
- Never invent facts that are not in the provided context.
- Never include contact details, links, or placeholders like [name].
- Output only the message text.`

// OutreachUserPrompt is the fmt template for the outreach request. Slots:
// the other person's name, the extracted interests, the shared-interest
// overlaps, and an optional profile headline.
const OutreachUserPrompt = `Draft a follow-up message to %s.

Conversation interests: %s
Shared interests with me: %s
What I know about them: %s

Write the message:`

// ============================================================================
// Candidate Scoring Prompt (LLM)
// ============================================================================

// CandidateScoreSystemPrompt asks the model to judge how likely a fetched
// profile belongs to the person from the conversation. The reply must be a
// bare number so the caller can parse it without a JSON round trip; anything
// unparsable falls back to heuristic scoring.
const CandidateScoreSystemPrompt = `You judge whether an online profile belongs to the person described in a conversation summary.

Respond with a single number between 0.0 and 1.0:
- 1.0: certainly the same person
- 0.5: plausible but unverifiable
- 0.0: certainly a different person

Output only the number.`

// CandidateScoreUserPrompt is the fmt template for one scoring request.
// Slots: conversation context, candidate display name, source platform,
// profile fields rendered as key: value lines.
const CandidateScoreUserPrompt = `Conversation context:
%s

Candidate profile:
Name: %s
Platform: %s
%s

Score:`
