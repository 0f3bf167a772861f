package api

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/render"
	"github.com/kalambet/civicbot/internal/transcript"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CivicBot</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 0 auto; padding: 1rem; }
.msg { padding: .5rem .75rem; margin: .5rem 0; border-radius: .5rem; }
.user { background: #dbeafe; margin-left: 20%; }
.bot { background: #f3f4f6; margin-right: 20%; }
.time { color: #6b7280; font-size: .75rem; }
.notice { color: #b45309; }
aside { font-size: .9rem; }
</style>
</head>
<body>
<h1>CivicBot</h1>
{{if .Location}}<p>Location: {{.Location}}</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
<main>
{{range .Messages}}
<div class="msg {{.Sender}}">
<div>{{.Body}}</div>
<div class="time">{{.Time}}</div>
</div>
{{end}}
{{if .Typing}}<p><em>CivicBot is typing...</em></p>{{end}}
</main>
<form method="post" action="/send">
<input name="content" size="60" placeholder="Ask about your rights, legal procedures, civic issues..." autofocus>
<button type="submit">Send</button>
</form>
<form method="post" action="/new"><button type="submit">New conversation</button></form>
<aside>
<h2>Topics</h2>
{{range .Topics}}
<form method="post" action="/send">
<input type="hidden" name="content" value="{{.Prompt}}">
<button type="submit" title="{{.Description}}">{{.Title}}</button>
</form>
{{end}}
<h2>Resources</h2>
<ul>
{{range .Resources}}<li>{{if .ExternalURL}}<a href="{{.ExternalURL}}" rel="noopener noreferrer">{{.Title}}</a>{{else}}{{.Title}}{{end}} ({{.Type}}): {{.Description}}</li>
{{end}}
</ul>
</aside>
</body>
</html>
`))

type pageMessage struct {
	Sender transcript.Sender
	Body   template.HTML
	Time   string
}

type pageData struct {
	Messages  []pageMessage
	Typing    bool
	Location  string
	Notice    string
	Topics    []catalog.Topic
	Resources []catalog.Resource
}

var notices = map[string]string{
	"slow":  "You are sending messages too quickly. Please wait a moment.",
	"empty": "Type a message first.",
}

func handlePage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs := deps.Controller.Messages()
		data := pageData{
			Messages:  make([]pageMessage, 0, len(msgs)),
			Typing:    deps.Controller.Typing(),
			Location:  deps.Controller.Location().String(),
			Notice:    notices[r.URL.Query().Get("notice")],
			Topics:    deps.Controller.Catalog().Topics,
			Resources: deps.Controller.Catalog().Resources,
		}
		for _, m := range msgs {
			data.Messages = append(data.Messages, pageMessage{
				Sender: m.Sender,
				Body:   messageHTML(m),
				Time:   m.Timestamp.Local().Format(time.Kitchen),
			})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTmpl.Execute(w, data); err != nil {
			deps.Logger.Error("rendering page", "error", err)
		}
	}
}

// messageHTML renders bot markdown; user text is shown verbatim.
func messageHTML(m transcript.Message) template.HTML {
	if m.Sender == transcript.SenderBot {
		if h, err := render.HTML(m.Content); err == nil {
			return h
		}
	}
	return template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>")
}

func handlePageSend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if deps.SendLimiter != nil && !deps.SendLimiter.Allow() {
			http.Redirect(w, r, "/?notice=slow", http.StatusSeeOther)
			return
		}

		_, err := deps.Controller.Send(r.Context(), r.FormValue("content"))
		if errors.Is(err, chat.ErrEmptyMessage) {
			http.Redirect(w, r, "/?notice=empty", http.StatusSeeOther)
			return
		}
		if err != nil {
			deps.Logger.Error("send failed", "error", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func handlePageNew(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Controller.NewConversation(); err != nil {
			deps.Logger.Error("resetting conversation", "error", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
