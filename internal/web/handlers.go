package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/priscilla100/goose-llm/internal/llm"
)

type turn struct {
	Role string
	Text string
	HTML template.HTML
}

type pageData struct {
	Model string
	Turns []turn
	Error string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Model: s.base.Model()}
	messages := s.base.Log().Since(s.firstShown)
	if v := s.lookup(r); v != nil {
		v.mu.Lock()
		data.Error = v.lastErr
		messages = v.session.Log().Since(s.firstShown)
		v.lastErr = ""
		v.mu.Unlock()
	}

	for _, msg := range messages {
		t := turn{Role: msg.Role, Text: msg.Content}
		if msg.Role == llm.RoleAssistant {
			t.HTML = s.renderMarkdown(msg.Content)
		}
		data.Turns = append(data.Turns, t)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.Errorf("Render page: %v", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	prompt := strings.TrimSpace(r.FormValue("prompt"))
	v := s.visitorFor(w, r)

	v.mu.Lock()
	switch strings.ToLower(prompt) {
	case "":
	case "q", "quit":
		s.reset(v)
	default:
		if _, err := v.session.Ask(r.Context(), prompt); err != nil {
			s.logger.Errorf("Follow-up failed: %v", err)
			v.lastErr = err.Error()
		}
	}
	v.mu.Unlock()

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type conversationResponse struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	resp := conversationResponse{
		Model:    s.base.Model(),
		Messages: s.base.Log().Since(s.firstShown),
	}
	if v := s.lookup(r); v != nil {
		v.mu.Lock()
		resp.Model = v.session.Model()
		resp.Messages = v.session.Log().Since(s.firstShown)
		v.mu.Unlock()
	}
	if resp.Messages == nil {
		resp.Messages = []llm.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// renderMarkdown converts an answer to HTML. goldmark drops raw HTML from the
// source by default, so the result is safe to embed.
func (s *Server) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>GOOSE anomaly chat</title>
<style>
body { font-family: sans-serif; max-width: 860px; margin: 2em auto; padding: 0 1em; }
.turn { border-radius: 6px; padding: 0.6em 1em; margin: 0.8em 0; }
.assistant { background: #f2f5fa; }
.user { background: #eef8ee; white-space: pre-wrap; }
.error { color: #a00; }
form { display: flex; gap: 0.5em; }
input[type=text] { flex: 1; padding: 0.4em; }
</style>
</head>
<body>
<h1>AI Chat for Anomaly Detection in GOOSE Protocol</h1>
<p>Model: <code>{{.Model}}</code></p>
<h2>AI's Response:</h2>
{{range .Turns}}{{if eq .Role "assistant"}}<div class="turn assistant">{{.HTML}}</div>
{{else}}<div class="turn user">{{.Text}}</div>
{{end}}{{end}}
{{with .Error}}<p class="error">Error: {{.}}</p>{{end}}
<form method="post" action="/ask">
<label for="prompt">Prompt:</label>
<input type="text" id="prompt" name="prompt" autofocus>
<button type="submit">Send</button>
</form>
<p><small>Type q or quit to start over.</small></p>
</body>
</html>
`))
