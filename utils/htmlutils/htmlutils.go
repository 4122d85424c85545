// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils recognizes HTML pages served where data was expected.
package htmlutils

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// HasHTMLContentType reports whether media is text/html.
func HasHTMLContentType(media string) bool {
	const expectedMedia = "text/html"

	return strings.EqualFold(
		expectedMedia,
		media[0:min(len(media), len(expectedMedia))],
	)
}

// LooksLikeHTML reports whether body starts like an HTML document.
func LooksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimLeft(body[:min(len(body), 512)], " \t\r\n\ufeff"))

	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// Title returns the collapsed text of the page <title>, decoding body with
// the charset of media or of its meta tags.
func Title(body io.Reader, media string) (string, error) {
	r, err := charset.NewReader(body, media)
	if err != nil {
		return "", err
	}

	n, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing body as HTML: %w", err)
	}

	t := findTitle(n)
	if t == nil {
		return "", nil
	}

	var sb strings.Builder

	nodeText(t, &sb)

	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func findTitle(n *html.Node) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && strings.EqualFold("title", child.Data) {
			return child
		}

		// the title lives in head
		if child.Type == html.ElementNode && strings.EqualFold("body", child.Data) {
			return nil
		}

		if t := findTitle(child); t != nil {
			return t
		}
	}

	return nil
}

func nodeText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		nodeText(child, sb)
	}
}
