package qa

// Prompt templates for query reformulation and answer synthesis.

const reformulateSystemPrompt = `You convert user questions into search queries for a document retrieval system.
Extract the key terms and concepts from the question and output them as a short search query.
Resolve pronouns and references using the conversation history when present.
Output only the search query, nothing else.`

const synthesizeSystemPrompt = `You answer questions using only the numbered source passages provided.
Rules:
- Base every claim on the sources; do not use outside knowledge.
- Cite the source number in square brackets after every claim, like [1] or [2].
- If the sources do not contain the answer, say so plainly.
- Be concise and direct.`
