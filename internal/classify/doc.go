// Package classify turns a user message plus conversation history into a
// routing decision. Two interchangeable strategies are provided: a
// deterministic keyword heuristic and a delegated LLM function-call
// classifier with strict decode and fallback semantics.
package classify
