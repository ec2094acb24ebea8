package preview

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	headOpen  = "<head"
	headClose = "</head>"
)

var (
	errNoHeadStart = errors.New("no head")
	errNoHeadEnd   = errors.New("no /head")
)

// extractHead isolates the document head and parses it as a fragment in a
// <head> context. Only the text between the head tags is parsed.
func extractHead(text string) (nodes []*html.Node, err error) {
	start := indexFold(text, headOpen)
	if start < 0 {
		return nil, NewError(KindNoHeadStart, errNoHeadStart)
	}
	end := indexFold(text, headClose)
	if end < 0 || end <= start+len(headOpen) {
		return nil, NewError(KindNoHeadEnd, errNoHeadEnd)
	}

	inner := text[start+len(headOpen) : end]
	// Drop the remainder of the opening tag, e.g. ` lang="en">`.
	if gt := strings.IndexByte(inner, '>'); gt >= 0 {
		inner = inner[gt+1:]
	}

	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = NewError(KindMalformedMarkup, fmt.Errorf("parse head: %v", r))
		}
	}()
	headCtx := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	nodes, err = html.ParseFragment(strings.NewReader(inner), headCtx)
	if err != nil {
		return nil, NewError(KindMalformedMarkup, fmt.Errorf("parse head: %w", err))
	}
	return nodes, nil
}

// indexFold is strings.Index with ASCII case folding on text. needle must be
// lower case.
func indexFold(text, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(text); i++ {
		j := 0
		for j < n && lowerASCII(text[i+j]) == needle[j] {
			j++
		}
		if j == n {
			return i
		}
	}
	return -1
}
