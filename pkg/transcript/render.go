package transcript

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/modcore/pkg/moderation"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

const stylesheet = `body{background:#313338;color:#dbdee1;font-family:"gg sans","Helvetica Neue",Arial,sans-serif;margin:0;padding:24px}
header{border-bottom:1px solid #3f4147;margin-bottom:16px;padding-bottom:12px}
header h1{font-size:20px;margin:0 0 4px}
.meta{color:#949ba4;font-size:13px}
.message{display:flex;flex-direction:column;padding:6px 0}
.author{color:#f2f3f5;font-weight:600;margin-right:8px}
.bot{background:#5865f2;border-radius:3px;color:#fff;font-size:10px;margin-right:8px;padding:1px 4px}
.time{color:#949ba4;font-size:12px}
.content{white-space:pre-wrap;word-wrap:break-word}
.attachment{color:#00a8fc;font-size:13px}
.embeds{color:#949ba4;font-size:12px;font-style:italic}`

// FileName is the deterministic transcript name for a channel.
func FileName(channel moderation.Channel) string {
	name := strings.TrimSpace(channel.Name)
	if name == "" {
		name = channel.ID
	}
	return "transcript-" + sanitizeFileName(name) + ".html"
}

func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Render produces the HTML transcript of msgs, which arrive newest first
// and are written oldest first.
func Render(channel moderation.Channel, msgs []Message, generatedAt time.Time) (*moderation.Transcript, error) {
	ordered := make([]Message, len(msgs))
	for i, m := range msgs {
		ordered[len(msgs)-1-i] = m
	}

	entries := make([]g.Node, 0, len(ordered))
	for _, m := range ordered {
		entries = append(entries, messageNode(m))
	}

	title := "#" + channel.Name
	if channel.Name == "" {
		title = channel.ID
	}

	doc := h.Doctype(
		h.HTML(
			h.Lang("en"),
			h.Head(
				h.Meta(h.Charset("utf-8")),
				h.TitleEl(g.Text("Transcript "+title)),
				h.StyleEl(g.Raw(stylesheet)),
			),
			h.Body(
				h.Header(
					h.H1(g.Text(title)),
					h.P(h.Class("meta"), g.Text(fmt.Sprintf("%s messages, generated %s",
						humanize.Comma(int64(len(ordered))), generatedAt.UTC().Format(timestampLayout)))),
				),
				h.Main(g.Group(entries)),
			),
		),
	)

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}
	return &moderation.Transcript{
		Name:      FileName(channel),
		ChannelID: channel.ID,
		Data:      buf.Bytes(),
		Entries:   len(ordered),
	}, nil
}

func messageNode(m Message) g.Node {
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}

	attachments := make([]g.Node, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, h.Div(h.Class("attachment"),
			h.A(h.Href(a.URL), g.Text(a.Filename)),
			g.Text(" ("+humanize.Bytes(uint64(max(a.Size, 0)))+")"),
		))
	}

	return h.Div(h.Class("message"), h.ID("m-"+m.ID),
		h.Div(
			h.Span(h.Class("author"), h.Title(m.AuthorID), g.Text(author)),
			g.If(m.Bot, h.Span(h.Class("bot"), g.Text("BOT"))),
			h.Span(h.Class("time"), g.Text(m.Timestamp.UTC().Format(timestampLayout))),
		),
		g.If(m.Content != "", h.Div(h.Class("content"), g.Text(m.Content))),
		g.Group(attachments),
		g.If(m.EmbedCount > 0, h.Div(h.Class("embeds"), g.Text(fmt.Sprintf("%d embed(s) not shown", m.EmbedCount)))),
	)
}
