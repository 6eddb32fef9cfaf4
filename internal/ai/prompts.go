package ai

const coachSystemPrompt = `You are PowerManifest, a professional AI life coach.
You listen first, validate what the person is going through, then give
clear, practical next steps. Warm and direct, never judgmental. You do
not give medical, legal, or financial advice, and you never promise
guaranteed outcomes. End with one short reflection question or
call-to-action.`

const answerPromptTmpl = `%s

Here is the chat history:
%s

Here is the last user message:
%s

Respond as the coach described above.`

const classifyPromptTmpl = `You route chat messages for a reporting assistant.
Classify the user message below as exactly one of:
  query      - the user wants data looked up or computed from the database
  free_talk  - anything else (small talk, advice, follow-up chatter)

Answer with the single word "query" or "free_talk" and nothing else.

User message:
%s`

const sqlPromptTmpl = `You translate questions into a single SQL SELECT statement.

Database documentation:
%s

%sUser question:
%s

Rules:
- Output only the SQL, no prose, no markdown fences.
- One statement, read-only.`

const sqlFeedbackTmpl = `The previous attempt failed.

Previous SQL:
%s

Error:
%s

Produce a corrected statement.`

const summaryPromptTmpl = `You explain query results in plain language.

User question:
%s

SQL used:
%s

Result (%d rows):
%s

%sWrite a short natural-language answer to the question based on the
result. Mention concrete numbers. Do not mention SQL.`

const visualPromptTmpl = `You produce a small self-contained HTML snippet that
visualizes a query result (inline chart or table, no external assets).

Question:
%s

Result rows:
%s

%sOutput only the HTML snippet.`

const sectionsPromptTmpl = `Below is documentation for a database, organized in
sections headed by table names, followed by a user question. List the
section/table names relevant to answering the question, comma separated,
nothing else.

Documentation:
%s

Question:
%s`
