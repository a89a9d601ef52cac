package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

type chatRequest struct {
	Message string          `json:"message"`
	Context json.RawMessage `json:"context"`
}

type chatReply struct {
	Message string `json:"message"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	reply, err := rt.chatter.Chat(r.Context(), domain.ChatRequest{
		UserID:  identityFromRequest(r).UserID,
		Message: body.Message,
		Context: contextText(body.Context),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatReply{Message: reply.Message})
}

// contextText renders the optional context value for the prompt. Strings are used
// as-is, any other JSON value is passed compacted.
func contextText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	var out bytes.Buffer
	if err := json.Compact(&out, trimmed); err != nil {
		return string(trimmed)
	}
	return out.String()
}
