package models

// InsufficientContextAnswer is returned when retrieval finds no passage
// above the score floor. The generator is never invoked in that case.
const InsufficientContextAnswer = "I could not find relevant information in the document to answer this question."

// AnswerSystemPrompt constrains the generator to the supplied passages.
const AnswerSystemPrompt = `You are a helpful assistant answering questions about a single document.
Answer using only the numbered context passages provided. If the passages do not contain the answer, say so.
Cite the passages you used with their bracketed numbers, e.g. [2].`

// AnswerPromptTemplate renders the numbered passages and the question.
// Arguments: context block, question.
const AnswerPromptTemplate = `Context passages:
%s
Question: %s

Answer:`
