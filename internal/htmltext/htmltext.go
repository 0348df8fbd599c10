// Package htmltext 把网页压成纯文本，保留行边界，供文本抽取使用。
package htmltext

import (
	"bytes"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skip = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Svg: true, atom.Head: true,
}

var block = map[atom.Atom]bool{
	atom.Tr: true, atom.Div: true, atom.Li: true, atom.P: true, atom.Br: true,
	atom.Table: true, atom.Tbody: true, atom.Thead: true, atom.Ul: true, atom.Ol: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Dt: true, atom.Dd: true,
}

var cell = map[atom.Atom]bool{atom.Td: true, atom.Th: true}

// Render 丢弃 script/style 等不可见内容；块级元素边界换行，单元格之间留空格。
func Render(doc []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skip[n.DataAtom] {
				return
			}
			if block[n.DataAtom] {
				b.WriteByte('\n')
			} else if cell[n.DataAtom] {
				b.WriteByte(' ')
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(root)
	return tidy(b.String()), nil
}

var (
	mdImageRE  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRE   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdMarkerRE = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}|[*+]|>)[ \t]+`)
	mdEmphRE   = regexp.MustCompile(`\*\*|__|\*`)
)

// Markdown 是第二种渲染：经 html-to-markdown 转换，表格竖线当作换行，
// 去掉链接/标题/强调等标记，只留文字。
func Markdown(doc []byte, domain string) (string, error) {
	md, err := htmltomarkdown.ConvertString(string(doc), converter.WithDomain(domain))
	if err != nil {
		return "", err
	}
	md = mdImageRE.ReplaceAllString(md, "")
	md = mdLinkRE.ReplaceAllString(md, "$1")
	md = mdMarkerRE.ReplaceAllString(md, "")
	md = mdEmphRE.ReplaceAllString(md, "")
	md = strings.ReplaceAll(md, "|", "\n")
	return tidy(md), nil
}

// tidy 逐行裁剪并去掉空行。
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.TrimSpace(strings.ReplaceAll(ln, "\u00a0", " ")); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
