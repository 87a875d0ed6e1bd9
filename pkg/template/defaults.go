package template

// Compiled-in defaults used when a user has not stored their own
// templates. Variable sets match the contracts consumed by the
// pipeline, the reranker and the evaluator.

// DefaultRAGQuery formats retrieved context and the user question.
var DefaultRAGQuery = MustNew(KindRAGQuery,
	`Use the following context to answer the question. If the context does
not contain the answer, say so instead of guessing.

Context:
{context}

Question: {question}

Answer:`,
	[]string{"context", "question"})

// DefaultReranking asks a judge model to rate one document against a
// query on an explicit scale.
var DefaultReranking = MustNew(KindReranking,
	`Rate the relevance of the document to the query on a scale of 0 to {scale}.
Respond with only the numeric score.

Query: {query}

Document:
{document}

Score:`,
	[]string{"query", "document", "scale"})

// DefaultResponseEvaluation asks a judge model to rate an answer given
// its question and retrieved context.
var DefaultResponseEvaluation = MustNew(KindResponseEvaluation,
	`Evaluate the answer below against the question and the provided
context. Respond with a single number between 0.0 and 1.0.

Context:
{context}

Question: {question}

Answer: {answer}

Score:`,
	[]string{"context", "question", "answer"})

// DefaultQuestionGeneration produces follow-up questions for a freshly
// ingested collection.
var DefaultQuestionGeneration = MustNew(KindQuestionGeneration,
	`Generate {count} concise questions a reader might ask about the
following text. One question per line.

Text:
{text}`,
	[]string{"count", "text"})
