package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sys := ""
		if len(req.Messages) > 0 {
			sys = strings.TrimSpace(req.Messages[0].Content)
		}
		var content string
		switch {
		case strings.Contains(sys, "research focus areas"):
			// internal/analysis.Analyzer's complete() call.
			content = "Original Question Analysis:\nThe question asks for a structured overview of the topic.\n\n" +
				"Research Gaps:\n1. Core mechanism behind the central claim [Priority: 5]\n" +
				"2. Historical origin and development over time [Priority: 4]\n" +
				"3. Current scholarly consensus and open disagreements [Priority: 3]\n"
		case strings.Contains(sys, "careful research analyst"):
			// internal/synth.Synthesizer's systemPrompt().
			user := ""
			if len(req.Messages) >= 2 {
				user = req.Messages[1].Content
			}
			urls := make([]string, 0, 8)
			for _, line := range strings.Split(user, "\n") {
				line = strings.TrimSpace(line)
				if strings.HasPrefix(line, "[") {
					if close := strings.Index(line, "]"); close > 0 {
						rest := strings.TrimSpace(line[close+1:])
						if open := strings.LastIndex(rest, "("); open >= 0 {
							if end := strings.LastIndex(rest, ")"); end > open {
								urls = append(urls, rest[open+1:end])
							}
						}
					}
				}
			}
			ref1, ref2 := "https://example.com/a", "https://example.com/b"
			if len(urls) >= 1 {
				ref1 = urls[0]
			}
			if len(urls) >= 2 {
				ref2 = urls[1]
			}
			content = "## Summary\nA concise synthesis citing [1] and [2].\n\n" +
				"## Findings\nDetails drawn from the provided excerpts [1], with corroboration from a second source [2].\n\n" +
				"Sources: [1] " + ref1 + " [2] " + ref2 + "\n"
		default:
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
