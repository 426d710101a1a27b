package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/scenario"
)

const pageTitle = "Cognee RBAC Demo – Alpha & Beta Due Diligence"

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type banner struct {
	Kind string // info, warning, success, error
	Text string
}

type view struct {
	Title      string
	Scenarios  scenario.Set
	Selected   scenario.Scenario
	RunningAs  string
	Question   string
	BetaShared bool
	Banners    []banner
	Result     resultView
}

type resultView struct {
	Empty      bool
	Label      string
	User       string
	DatasetIDs string
	Banner     banner
	Answer     template.HTML
	HasAnswer  bool
	Hint       template.HTML
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func md() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdown
}

// renderMarkdown converts engine text to HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := md().Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func resultFor(p *demo.Payload) resultView {
	if p == nil {
		return resultView{Empty: true, Hint: renderMarkdown("Select a scenario on the left and click **Run query**.")}
	}
	rv := resultView{
		Label:      p.Label,
		User:       p.User,
		DatasetIDs: strings.Join(p.DatasetIDs, "\n"),
	}
	if rv.DatasetIDs == "" {
		rv.DatasetIDs = "(none)"
	}
	switch {
	case p.Denied():
		rv.Banner = banner{Kind: "error", Text: "Permission error: " + p.Error}
	default:
		rv.Banner = banner{Kind: "success", Text: "Query executed successfully."}
	}
	if answer, ok := p.Answer(); ok {
		rv.Answer = renderMarkdown(answer)
		rv.HasAnswer = true
	}
	return rv
}
